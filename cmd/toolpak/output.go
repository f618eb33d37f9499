package main

import (
	"encoding/json"
	"fmt"

	"toolpak/internal/domain"
	"toolpak/internal/infra/index"
)

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printPayload(payload domain.PackagePayload, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(payload)
	}
	fmt.Printf("%s/%s@%s license=%s entry=%s module=%s files=%d\n",
		payload.Author, payload.Name, payload.Version,
		payload.License, payload.Entry, payload.Module, len(payload.Files))
	return nil
}

func printLoaded(loaded domain.LoadedTool, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{
			"name":    loaded.Config.Name,
			"author":  loaded.Config.Meta.Author,
			"version": loaded.Config.Meta.Version,
			"impl":    fmt.Sprintf("%T", loaded.Impl),
		})
	}
	fmt.Printf("loaded %s impl=%T\n", loaded.Config.Name, loaded.Impl)
	return nil
}

func printListings(listings []domain.ToolListing, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(listings)
	}
	for _, listing := range listings {
		toolType := listing.ToolType
		if toolType == "" {
			toolType = domain.DefaultToolType
		}
		fmt.Printf("%s/%s@%s\t%s\n", listing.Author, listing.Name, listing.Version, toolType)
	}
	return nil
}

func printNames(names []string, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(names)
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func printRecords(records []index.Record, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(records)
	}
	for _, rec := range records {
		fmt.Printf("%s/%s@%s\t%s\n", rec.Author, rec.Name, rec.Version, rec.CachePath)
	}
	return nil
}
