package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/unrolled/render"

	"github.com/Alcatamy/Mercato/internal/cache"
	"github.com/Alcatamy/Mercato/internal/domain"
	"github.com/Alcatamy/Mercato/internal/market"
	"github.com/Alcatamy/Mercato/internal/session"
	"github.com/Alcatamy/Mercato/internal/squad"
	"github.com/Alcatamy/Mercato/internal/standings"
	"github.com/Alcatamy/Mercato/internal/types"
)

var errBadBody = domain.ErrValidation("BAD_REQUEST", "request body is not valid JSON")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadBody
	}
	return nil
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func Login(gate *session.Gate, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.LoginRequest
		if err := decode(r, &req); err != nil {
			writeError(w, rnd, err)
			return
		}
		s, token, err := gate.Authenticate(r.Context(), req.ManagerID, req.Key)
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusCreated, types.LoginResponse{
			Token:   token,
			Manager: domain.Manager{ID: s.ManagerID, Name: s.ManagerName},
		})
	}
}

func Logout(gate *session.Gate, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := gate.Logout(r.Context(), SessionFrom(r.Context()).ID); err != nil {
			writeError(w, rnd, domain.ErrRemote("logout failed", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Me(rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = rnd.JSON(w, http.StatusOK, SessionFrom(r.Context()))
	}
}

func GetState(c *cache.Cache, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := c.State(r.Context())
		if err != nil {
			writeError(w, rnd, domain.ErrRemote("state unavailable", err))
			return
		}
		_ = rnd.JSON(w, http.StatusOK, cache.Snapshot{Version: v.Version, State: v.State})
	}
}

func GetSquad(c *cache.Cache, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sq, err := c.Squad(r.Context(), chi.URLParam(r, "managerID"))
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusOK, sq)
	}
}

func GetMarket(c *cache.Cache, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listings, err := c.Market(r.Context())
		if err != nil {
			writeError(w, rnd, domain.ErrRemote("market unavailable", err))
			return
		}
		_ = rnd.JSON(w, http.StatusOK, listings)
	}
}

func GetOffers(m *market.Engine, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offers, err := m.Offers(r.Context(), chi.URLParam(r, "listingID"))
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusOK, offers)
	}
}

func ListForSale(m *market.Engine, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ListRequest
		if err := decode(r, &req); err != nil {
			writeError(w, rnd, err)
			return
		}
		l, err := m.ListForSale(r.Context(), SessionFrom(r.Context()), req.PlayerID, req.Price)
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusCreated, l)
	}
}

func MakeOffer(m *market.Engine, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.OfferRequest
		if err := decode(r, &req); err != nil {
			writeError(w, rnd, err)
			return
		}
		o, err := m.MakeOffer(r.Context(), SessionFrom(r.Context()), chi.URLParam(r, "listingID"), req.Amount)
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusCreated, o)
	}
}

func AcceptOffer(m *market.Engine, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sale, err := m.AcceptOffer(r.Context(), SessionFrom(r.Context()),
			chi.URLParam(r, "listingID"), chi.URLParam(r, "offerID"))
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusOK, sale)
	}
}

func CancelSale(m *market.Engine, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.CancelSale(r.Context(), SessionFrom(r.Context()), chi.URLParam(r, "listingID")); err != nil {
			writeError(w, rnd, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AddCustomPlayer(s *squad.Service, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req squad.CustomPlayer
		if err := decode(r, &req); err != nil {
			writeError(w, rnd, err)
			return
		}
		p, err := s.AddCustomPlayer(r.Context(), SessionFrom(r.Context()), req)
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusCreated, p)
	}
}

func AddCatalogPlayer(s *squad.Service, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.AddCatalogPlayer(r.Context(), SessionFrom(r.Context()), chi.URLParam(r, "playerID"))
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusCreated, p)
	}
}

func RemovePlayer(s *squad.Service, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.RemovePlayer(r.Context(), SessionFrom(r.Context()), chi.URLParam(r, "playerID")); err != nil {
			writeError(w, rnd, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SearchCatalog(s *squad.Service, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := squad.CatalogFilter{Query: q.Get("q"), Team: q.Get("team")}
		var err error
		if f.MinValue, err = intParam(q.Get("min")); err != nil {
			writeError(w, rnd, err)
			return
		}
		if f.MaxValue, err = intParam(q.Get("max")); err != nil {
			writeError(w, rnd, err)
			return
		}
		players, err := s.SearchCatalog(r.Context(), f)
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusOK, players)
	}
}

func CatalogTeams(s *squad.Service, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teams, err := s.CatalogTeams(r.Context())
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusOK, teams)
	}
}

func ListJornadas(l *standings.Ledger, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		js, err := l.ListJornadas(r.Context())
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		out := make([]types.JornadaResponse, 0, len(js))
		for _, j := range js {
			out = append(out, types.NewJornadaResponse(j))
		}
		_ = rnd.JSON(w, http.StatusOK, out)
	}
}

func GetJornada(l *standings.Ledger, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, err := l.GetJornada(r.Context(), chi.URLParam(r, "jornadaID"))
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusOK, types.NewJornadaResponse(j))
	}
}

func SaveJornada(l *standings.Ledger, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SaveJornadaRequest
		if err := decode(r, &req); err != nil {
			writeError(w, rnd, err)
			return
		}
		mode, err := standings.ParseSaveMode(req.Mode)
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		j, err := l.SaveJornada(r.Context(), SessionFrom(r.Context()), req.Numero, req.Points, mode)
		if err != nil {
			writeError(w, rnd, err)
			return
		}
		_ = rnd.JSON(w, http.StatusOK, types.NewJornadaResponse(j))
	}
}

var errPaymentBody = domain.ErrValidation("BAD_REQUEST", "send either paid with defaultAmount or amount")

func SetPayment(l *standings.Ledger, rnd *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.PaymentRequest
		if err := decode(r, &req); err != nil {
			writeError(w, rnd, err)
			return
		}
		sess := SessionFrom(r.Context())
		jornadaID, manager := chi.URLParam(r, "jornadaID"), chi.URLParam(r, "manager")

		switch {
		case req.Paid != nil && req.DefaultAmount != nil:
			p, err := l.SetPaymentStatus(r.Context(), sess, jornadaID, manager, *req.DefaultAmount, *req.Paid)
			if err != nil {
				writeError(w, rnd, err)
				return
			}
			_ = rnd.JSON(w, http.StatusOK, p)
		case req.Amount != nil:
			if err := l.SetPaymentAmount(r.Context(), sess, jornadaID, manager, *req.Amount); err != nil {
				writeError(w, rnd, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, rnd, errPaymentBody)
		}
	}
}

func intParam(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, domain.ErrValidation("BAD_REQUEST", "value filter must be a whole number")
	}
	return n, nil
}
