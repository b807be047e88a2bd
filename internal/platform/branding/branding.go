// Package branding centralizes user-facing product naming.
package branding

// AppName is the product name shown to users and announced by servers.
const AppName = "Osusu"
