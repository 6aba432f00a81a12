//go:build !race

package memory

import "golang.org/x/crypto/bcrypt"

func defaultHashCost() int {
	return bcrypt.DefaultCost
}
