package usecase

import (
	"github.com/ekehi/ekehi-sync-server/cacherepo"
	"github.com/ekehi/ekehi-sync-server/model"
)

// toResource maps a strategy execution result onto the loading, success
// or error resource a consumer renders.
func toResource[T any](res cacherepo.Result[T]) model.Resource[T] {
	if res.Err != nil {
		return model.Failure[T](res.Err.Error())
	}
	return model.Success(res.Value)
}
