package store

import (
	"github.com/tabremote/relay-server/internal/model"
)

type PairCodeRepository interface {
	FindByCode(code string) (model.PairCode, bool)
	Create(code model.PairCode)
	Delete(code string)
	// DeleteWhere removes every code matching fn and returns how many were removed.
	DeleteWhere(fn func(model.PairCode) bool) int
	Count() int
}

type pairCodeRepo struct {
	codes map[string]model.PairCode
}

func NewPairCodeRepository() PairCodeRepository {
	return &pairCodeRepo{codes: make(map[string]model.PairCode)}
}

func (r *pairCodeRepo) FindByCode(code string) (model.PairCode, bool) {
	pc, ok := r.codes[code]
	return pc, ok
}

func (r *pairCodeRepo) Create(code model.PairCode) {
	r.codes[code.Code] = code
}

func (r *pairCodeRepo) Delete(code string) {
	delete(r.codes, code)
}

func (r *pairCodeRepo) DeleteWhere(fn func(model.PairCode) bool) int {
	removed := 0
	for code, pc := range r.codes {
		if fn(pc) {
			delete(r.codes, code)
			removed++
		}
	}
	return removed
}

func (r *pairCodeRepo) Count() int {
	return len(r.codes)
}
