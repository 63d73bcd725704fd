// Package mysql opens MySQL connection pools and applies the embedded schema
// migrations shared by the registry and allocation job stores.
package mysql
