package integration

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"

	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/google/uuid"
)

const (
	skuPrefix = "CV"
	// digestLength is 16 base32 characters, 80 bits of the SHA-256 digest
	digestLength = 16
)

// Option names and values shared by every adapter that models variants as option tuples
const (
	OptionFinish  = "Finish"
	OptionEdition = "Edition"
	FinishFoil    = "Foil"
	FinishNonFoil = "Non-foil"
)

// DeriveSKU returns the deterministic remote SKU of an inventory record's natural key:
// CV-<digest16>-<F|N>, where the digest covers the full card, location and edition ids.
// Both lookup and creation paths use it so they can never disagree.
func DeriveSKU(cardID, locationID uuid.UUID, foil bool, editionID *uuid.UUID) string {
	finish := "N"
	if foil {
		finish = "F"
	}
	edition := "STD"
	if editionID != nil {
		edition = editionID.String()
	}
	return strings.Join([]string{skuPrefix, KeyDigest(cardID.String(), locationID.String(), finish, edition), finish}, "-")
}

// SKUFor returns the SKU of a record
func SKUFor(rec *inventory.Record) string {
	return DeriveSKU(rec.CardID, rec.LocationID, rec.Foil, rec.EditionID)
}

// CardKey returns the deterministic remote key of a card's product
func CardKey(cardID uuid.UUID) string {
	return skuPrefix + "-" + KeyDigest(cardID.String())
}

var digestEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// KeyDigest returns an 80-bit upper-case base32 digest of the joined parts
func KeyDigest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return digestEncoding.EncodeToString(sum[:])[:digestLength]
}

// VariantOptions is the option tuple that identifies a variant within its remote product
type VariantOptions struct {
	Finish  string
	Edition string
}

// OptionsFor returns the option tuple of a record
func OptionsFor(rec *inventory.Record) VariantOptions {
	finish := FinishNonFoil
	if rec.Foil {
		finish = FinishFoil
	}
	return VariantOptions{Finish: finish, Edition: rec.Edition()}
}

// Equal compares option tuples ignoring case and surrounding whitespace
func (o VariantOptions) Equal(other VariantOptions) bool {
	return o.Key() == other.Key()
}

// Key returns the normalized form of the tuple
func (o VariantOptions) Key() string {
	return strings.ToLower(strings.TrimSpace(o.Finish)) + "|" + strings.ToLower(strings.TrimSpace(o.Edition))
}
