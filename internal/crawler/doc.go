// Package crawler holds the EURES ingestion domain: credentials, search pages,
// normalized listings and the Pipeline that walks result pages, fetches details
// and commits each page before requesting the next.
//
// Transport, storage and session acquisition live in sibling packages and are
// wired in through the interfaces declared here.
package crawler
