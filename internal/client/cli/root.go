package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	s = s + string(a.mode())
	return fmt.Sprintf("(%s)", s)
}

// Root restores any persisted session and runs the REPL on stdin.
func (a *App) Root(ctx context.Context) {
	fmt.Println("Welcome to ShopKeeper CLI (type 'help' for commands)")

	a.restoreSession(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
