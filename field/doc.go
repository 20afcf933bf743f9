// Package field holds the decoded data model shared by every format
// package: regular grids, station tables, their headers, and the error
// types decoders return.
//
// Missing values are NaN throughout. Latitude axes of decoded grids are
// ascending.
package field
