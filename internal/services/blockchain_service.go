// internal/services/blockchain_service.go
package services

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"
)

// BlockchainService computes anchor hashes for records. Nothing is submitted to
// a chain; the hash is stored with the record and can be recomputed to verify it.
type BlockchainService struct {
	logger *logrus.Entry
}

func NewBlockchainService(logger *logrus.Entry) *BlockchainService {
	return &BlockchainService{logger: componentLogger(logger, "blockchain")}
}

// CreateProductRecord anchors the authorization of a product under a license.
func (s *BlockchainService) CreateProductRecord(productID, licenseID uuid.UUID, issuedAt time.Time) (string, error) {
	recordData := productRecord(productID, licenseID, issuedAt)

	hash, err := s.generateHash(recordData)
	if err != nil {
		return "", err
	}
	s.logger.WithFields(logrus.Fields{
		"product_id": productID,
		"license_id": licenseID,
		"hash":       hash,
	}).Debug("product record anchored")

	return hash, nil
}

func (s *BlockchainService) CreateIPRecord(ipAssetID, creatorID uuid.UUID, createdAt time.Time) (string, error) {
	recordData := map[string]interface{}{
		"type":       "ip_creation",
		"ip_id":      ipAssetID.String(),
		"creator_id": creatorID.String(),
		"created_at": createdAt.UTC().Format(time.RFC3339Nano),
	}

	return s.generateHash(recordData)
}

// VerifyProductRecord recomputes the product anchor and compares it with hash.
func (s *BlockchainService) VerifyProductRecord(hash string, productID, licenseID uuid.UUID, issuedAt time.Time) bool {
	expected, err := s.generateHash(productRecord(productID, licenseID, issuedAt))
	return err == nil && expected == hash
}

func productRecord(productID, licenseID uuid.UUID, issuedAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		"product_id": productID.String(),
		"license_id": licenseID.String(),
		"issued_at":  issuedAt.UTC().Format(time.RFC3339Nano),
	}
}

// generateHash returns 0x-prefixed Keccak-256 of the canonical JSON of data.
// encoding/json writes map keys in sorted order.
func (s *BlockchainService) generateHash(data map[string]interface{}) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode anchor record: %w", err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}
