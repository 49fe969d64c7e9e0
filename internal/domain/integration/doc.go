// Package integration contains the marketplace Integration bounded context.
// It defines how local catalog and inventory state is mapped onto remote marketplace catalogs.
//
// Key concepts:
//   - Marketplace: the supported remote channels (storefront, auction, card market, retail)
//   - IntegrationCredential: per (store, marketplace) enable flag, secrets and settings
//   - Credential: the marketplace-shaped auth variant decoded from the secrets
//   - MarketplaceAdapter: port every marketplace adapter implements
//   - RemoteAPIError: structured adapter failure classified by ErrorKind
//   - DeriveSKU: the single source of remote SKUs for lookup and creation
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
