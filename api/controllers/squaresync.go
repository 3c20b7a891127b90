package controllers

import (
	"net/http"

	"github.com/marketloop/marketloop-backend/api/responses"
	internalsquaresync "github.com/marketloop/marketloop-backend/internal/squaresync"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
)

// TriggerSquareSync pulls the caller's Square payments on demand instead of
// waiting for the next scheduled cycle.
func TriggerSquareSync(svc *internalsquaresync.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square sync service unavailable"))
			return
		}

		vendorID, err := actorVendorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		synced, err := svc.SyncVendor(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"synced": synced})
	}
}
