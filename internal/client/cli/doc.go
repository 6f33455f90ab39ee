// Package cli is the interactive ShopKeeper client: a REPL over the local
// store, the network gateway, the reconciliation engine and the interception
// proxy.
//
// The App type is the composition root. NewApp opens the local database,
// builds the gateway and the engine around it, and prepares the interception
// proxy; Run starts the background machinery (connectivity watcher, periodic
// sync, caching proxy) and hands the terminal to the REPL until the user
// exits.
//
// All product commands are optimistic: they commit to the local store first
// and leave pushing to the engine, so every command works without a network
// connection.
package cli
