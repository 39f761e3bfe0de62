// Package storage uploads finished videos to S3 or an S3-compatible object
// store and issues time-limited download links.
//
// New returns a disabled store when credentials, region or bucket are
// missing. The disabled store accepts uploads without effect and issues empty
// links so the pipelines still run to completion on an offline install.
package storage
