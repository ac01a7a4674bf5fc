// Package catalog loads and holds the hub's service catalog: for each
// domain, the services it offers and their schemas.
package catalog
