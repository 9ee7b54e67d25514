package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"staffroom/auth"
)

// Development helper that mints a bearer token for one participant. The
// secret must match the server's JWT_SECRET.
func main() {
	id := flag.String("id", "", "Participant id")
	name := flag.String("name", "", "Display name")
	privileged := flag.Bool("privileged", false, "Grant the privileged role")
	duration := flag.Duration("duration", 24*time.Hour, "Token validity")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET must be set")
	}
	if *id == "" || *name == "" {
		log.Fatal("both -id and -name are required")
	}

	issuer := auth.NewTokenIssuer(secret, *duration)
	token, err := issuer.Generate(*id, *name, *privileged)
	if err != nil {
		log.Fatal("token generation failed: ", err)
	}
	fmt.Println(token)
}
