// Package gcp builds Google Cloud clients from the process environment.
package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
)

// ClientOptionsFromEnv returns explicit credentials when
// GOOGLE_APPLICATION_CREDENTIALS_JSON or GOOGLE_APPLICATION_CREDENTIALS is
// set, and nil otherwise so the client falls back to Application Default
// Credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// EmulatorHost returns FIRESTORE_EMULATOR_HOST. The Firestore client picks
// it up on its own; callers use it to skip real credentials.
func EmulatorHost() string {
	return strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST"))
}

// NewFirestoreClient opens a client for one database of the project. An
// empty database selects "(default)".
func NewFirestoreClient(ctx context.Context, projectID, database string, opts ...option.ClientOption) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("create firestore client: project id is required")
	}
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	if EmulatorHost() == "" {
		opts = append(ClientOptionsFromEnv(), opts...)
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return client, nil
}
