// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: BaseModel shared by entity tables
// - catalog.go: catalog items and their cached remote products
// - inventory.go: inventory records and their per-marketplace sync state
// - integration.go: integration credentials with sealed secrets
package models
