// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"github.com/AleutianAI/muse-pipeline/services/pipeline/config"
)

var cfg config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func loadConfig() {
	path := configPath
	if path == defaultConfigPath {
		// The default config file is optional; explicit paths are not.
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	c, err := config.Load(path)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	cfg = c
}
