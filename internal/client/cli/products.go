package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/client/models"
	"github.com/dmitrijs2005/shopkeeper/internal/client/syncer"
	"github.com/dmitrijs2005/shopkeeper/internal/filex"
)

// Add prompts for the product fields, commits the record locally and lets
// the engine push it when the network allows. The command succeeds even
// fully offline; the record simply stays a draft.
func (a *App) Add(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Enter product name", os.Stdout)
	if err != nil {
		return err
	}

	description, err := GetMultiline(a.reader, "Enter description", os.Stdout)
	if err != nil {
		return err
	}

	var photo []byte
	photoPath, err := getSimpleText(a.reader, "Photo file path (empty to skip)", os.Stdout)
	if err != nil {
		return err
	}
	if photoPath != "" {
		photo, err = filex.ReadPhoto(photoPath)
		if err != nil {
			fmt.Println("Could not read photo:", err)
			return err
		}
	}

	lat, err := a.readCoordinate("Latitude (empty to skip)")
	if err != nil {
		return err
	}
	lon, err := a.readCoordinate("Longitude (empty to skip)")
	if err != nil {
		return err
	}

	product, err := a.engine.AddProduct(ctx, name, description, photo, lat, lon)
	if err != nil {
		fmt.Println("Failed to save product:", err)
		return err
	}

	if product.Synced {
		fmt.Printf("Saved and synced (server id %s)\n", *product.ServerID)
	} else {
		fmt.Printf("Saved locally as %s, will sync when online\n", product.ID)
	}
	return nil
}

// List shows the catalog: the live server view when online, the local
// confirmed records otherwise.
func (a *App) List(ctx context.Context) error {
	result := a.engine.GetProducts(ctx)

	if result.Offline {
		fmt.Println("(offline: showing locally cached records)")
	}
	if len(result.Items) == 0 {
		fmt.Println("No products.")
		return nil
	}
	for _, p := range result.Items {
		line := fmt.Sprintf("%s  %s", p.ID, p.Name)
		if p.Lat != nil && p.Lon != nil {
			line += fmt.Sprintf("  (%.4f, %.4f)", *p.Lat, *p.Lon)
		}
		fmt.Println(line)
	}
	return nil
}

// Update patches a single field of an existing record by id.
func (a *App) Update(ctx context.Context, id string) error {
	name, err := getSimpleText(a.reader, "New name (empty to keep)", os.Stdout)
	if err != nil {
		return err
	}
	description, err := getSimpleText(a.reader, "New description (empty to keep)", os.Stdout)
	if err != nil {
		return err
	}

	var patch models.ProductPatch
	if name != "" {
		patch.Name = &name
	}
	if description != "" {
		patch.Description = &description
	}
	if patch.Name == nil && patch.Description == nil {
		fmt.Println("Nothing to change.")
		return nil
	}

	if _, err := a.engine.UpdateProduct(ctx, id, patch); err != nil {
		fmt.Println("Update failed:", err)
		return err
	}
	fmt.Println("Updated.")
	return nil
}

// Delete removes a record by id, locally first.
func (a *App) Delete(ctx context.Context, id string) error {
	removed, err := a.engine.DeleteProduct(ctx, id)
	if err != nil {
		fmt.Println("Delete failed:", err)
		return err
	}
	if !removed {
		fmt.Println("No such product:", id)
		return nil
	}
	fmt.Println("Deleted.")
	return nil
}

// Sync runs one sync pass right now.
func (a *App) Sync(ctx context.Context) error {
	if err := a.engine.SyncNow(ctx); err != nil {
		fmt.Println("Sync failed:", err)
		return err
	}
	fmt.Println("Sync pass finished.")
	return nil
}

// Status prints connectivity, session and queue state.
func (a *App) Status(ctx context.Context) error {
	fmt.Println("mode:        ", a.mode())
	if a.userName != "" {
		fmt.Println("logged in as:", a.userName)
	} else {
		fmt.Println("logged in as: (nobody)")
	}

	var last time.Time
	if ok, err := a.store.GetSetting(ctx, syncer.SettingLastSyncTime, &last); err == nil && ok {
		fmt.Println("last sync:   ", last.Local().Format(time.RFC822))
	} else {
		fmt.Println("last sync:    never")
	}

	pending, err := a.store.Queue().Pending(ctx)
	if err != nil {
		return err
	}
	fmt.Println("queued:      ", len(pending))
	fmt.Println("interceptor: ", a.interceptor.State())
	return nil
}

// Queue lists pending write-behind items with their attempt counts.
func (a *App) Queue(ctx context.Context) error {
	pending, err := a.store.Queue().Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}
	for _, item := range pending {
		fmt.Printf("#%d  %s  attempts=%d  queued=%s\n",
			item.ID, item.Type, item.Attempts, item.Timestamp.Local().Format(time.RFC822))
	}
	return nil
}

// CacheStatus prints the interception cache partitions.
func (a *App) CacheStatus(ctx context.Context) error {
	status, err := a.interceptor.CacheContents(ctx)
	if err != nil {
		return err
	}
	fmt.Println("state:", status.State)
	for _, p := range status.Partitions {
		fmt.Printf("%s: %d entries\n", p.Name, p.Entries)
		for _, s := range p.Sample {
			fmt.Println("   ", s)
		}
	}
	return nil
}

// ClearCache drops every interception cache partition.
func (a *App) ClearCache(ctx context.Context) error {
	if err := a.interceptor.ClearCache(ctx); err != nil {
		return err
	}
	fmt.Println("Cache cleared.")
	return nil
}

func (a *App) readCoordinate(prompt string) (*float64, error) {
	raw, err := getSimpleText(a.reader, prompt, os.Stdout)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fmt.Println("Not a number, skipping coordinate.")
		return nil, nil
	}
	return &v, nil
}
