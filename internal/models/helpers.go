package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func GenerateGameID() string {
	return fmt.Sprintf("game_%s_%s",
		time.Now().Format("20060102"),
		uuid.NewString())
}

func GenerateLobbyID() string {
	return fmt.Sprintf("lobby_%s", uuid.NewString())
}

func GenerateClientSeed() (string, error) {
	bytes := make([]byte, 16) // 128 bits of entropy
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate client seed: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func NewFairnessRecord(userID int64, serverSeedID string) (*FairnessRecord, error) {
	clientSeed, err := GenerateClientSeed()
	if err != nil {
		return nil, err
	}

	return &FairnessRecord{
		UserID:       userID,
		ClientSeed:   clientSeed,
		Nonce:        0,
		ServerSeedID: serverSeedID,
		UpdatedAt:    time.Now(),
	}, nil
}
