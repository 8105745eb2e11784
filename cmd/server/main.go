package main

import (
	"os"
)

// @title UnyX Social Marketplace API
// @version 1.0
// @description Marketplace listings and buyer/seller messaging.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
