// Package apiresponses provides the JSON response helpers used by the api
// and ratelimit packages so both answer clients with the same shapes.
package apiresponses
