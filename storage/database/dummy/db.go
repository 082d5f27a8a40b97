// Package dummydb provides in-memory repositories for tests and local hacking.
package dummydb

import (
	"sync"

	"github.com/sikshyahq/sikshya/core/course"
	"github.com/sikshyahq/sikshya/core/payment"
	"github.com/sikshyahq/sikshya/core/user"
)

type (
	DB struct {
		user    *userTable
		course  *courseTable
		payment *paymentTables
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
	}

	paymentTables struct {
		sync.RWMutex
		transactions map[string]*payment.Transaction
		unlockCodes  map[string]*payment.UnlockCode
		codeHashIdx  map[string]string // hash -> unlock code id; unique
	}
)

func Open() *DB {
	return &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		course: &courseTable{table: make(map[string]*course.Course)},
		payment: &paymentTables{
			transactions: make(map[string]*payment.Transaction),
			unlockCodes:  make(map[string]*payment.UnlockCode),
			codeHashIdx:  make(map[string]string),
		},
	}
}
