// Package crawler walks the paginated catalog listing from the stored
// checkpoint down to page 1, resolving each item's detail page and persisting
// records, download bundles and the checkpoint through a catalog.Store.
package crawler
