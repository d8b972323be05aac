package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/ferZyx/ip-cam-monitor/internal/auth"
)

// Prints an argon2id hash for ADMIN_PASSWORD_HASH.
func main() {
	password := flag.String("password", "", "password to hash")
	flag.Parse()

	if *password == "" {
		log.Fatal("usage: genpass -password <secret>")
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("hash error: %v", err)
	}
	fmt.Println(hash)
}
