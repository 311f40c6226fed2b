//go:build car

package role

const current = Car
