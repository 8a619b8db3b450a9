//go:build !cgo

package storage

func init() {
	cgoEnabled = false
}
