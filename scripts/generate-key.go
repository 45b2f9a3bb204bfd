// Package main is a development utility that prints a random JWT signing secret and a
// ready-to-run SQL snippet seeding a local super admin, so a developer can sign in to a
// fresh database without walking through the setup token flow. Do not use its output in
// production; use POST /api/v1/setup/admin there.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	devEmail    = "admin@dev.local"
	devPassword = "dev-admin-password"
)

func main() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(devPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal(err)
	}
	userUUID := uuid.NewString()

	fmt.Println("==========================================================")
	fmt.Println("Development credentials")
	fmt.Println("==========================================================")
	fmt.Printf("\nEVR_JWT_SECRET=%s\n", hex.EncodeToString(secret))
	fmt.Printf("\nEmail:    %s\nPassword: %s\n", devEmail, devPassword)
	fmt.Println("\n==========================================================")
	fmt.Println("SQL:")
	fmt.Println("==========================================================")
	fmt.Printf(`
INSERT INTO users (uuid, email, password_hash, display_name, created_by_role)
VALUES ('%[1]s', '%[2]s', '%[3]s', 'Dev Admin', 'system');
INSERT INTO system_memberships (uuid, user_uuid, role, created_by_role)
VALUES ('%[4]s', '%[1]s', 'super_admin', 'system');
UPDATE system_settings SET setup_completed = true, setup_token_hash = NULL, setup_completed_at = NOW() WHERE id = 1;
`, userUUID, devEmail, string(hash), uuid.NewString())
	fmt.Println("\n==========================================================")
}
