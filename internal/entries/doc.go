// Package entries holds resident block payloads in an access-ordered map.
// Get promotes an entry to most-recently accessed; eviction scans yield the
// least-recently accessed entries first.
package entries
