// Package crawler holds the officer-search domain: search units and their
// generation, the listing crawler that pages through search results, the
// record extractor for officer appointment pages, and the checkpoint codec.
// Browsers, stores, pacers, and writers are consumed through the interfaces
// declared here and implemented by sibling packages.
package crawler
