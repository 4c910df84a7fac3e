package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"employee-portal/internal/db"
)

const (
	defaultFavoritesLimit = 5
	maxFavoritesLimit     = 20
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// pickFruitReq is the body of POST /api/fruits/picks.
type pickFruitReq struct {
	FruitID int    `json:"fruit_id" validate:"required,gte=1"`
	Picker  string `json:"picker" validate:"required,min=1,max=50"`
}

type errorResp struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

// validationDetails turns validator errors into field -> message.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}

	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			details[field] = field + " is required"
		case "gte":
			details[field] = field + " must be greater than or equal to " + fe.Param()
		case "min", "max":
			details[field] = field + " must be between 1 and 50 characters"
		default:
			details[field] = field + " is invalid"
		}
	}
	return details
}

// HandleListEmployees handles GET /api/employees.
func (s *Server) HandleListEmployees(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	employees, err := s.cfg.Employees.List(r.Context())
	GetMetrics().RecordEmployeeList(time.Since(start), err)
	if err != nil {
		Error("list employees", map[string]interface{}{"rid": RequestIDFromContext(r.Context())}, err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"employees": employees})
}

// HandleListFruits handles GET /api/fruits.
func (s *Server) HandleListFruits(w http.ResponseWriter, r *http.Request) {
	fruits, err := s.cfg.Fruits.List(r.Context())
	if err != nil {
		Error("list fruits", map[string]interface{}{"rid": RequestIDFromContext(r.Context())}, err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"fruits": fruits})
}

// HandlePickFruit handles POST /api/fruits/picks.
//
// Request body: {"fruit_id": 3, "picker": "ada"}
// Response: 201 with the stored pick, 400 on a bad body, 404 for an unknown fruit.
func (s *Server) HandlePickFruit(w http.ResponseWriter, r *http.Request) {
	var req pickFruitReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		GetMetrics().RecordFruitPick(false)
		writeError(w, http.StatusBadRequest, "bad request")
		return
	}

	req.Picker = strings.TrimSpace(req.Picker)
	if err := validate.Struct(req); err != nil {
		GetMetrics().RecordFruitPick(false)
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "validation failed", Details: validationDetails(err)})
		return
	}

	pick, err := s.cfg.Fruits.Pick(r.Context(), req.FruitID, req.Picker)
	if errors.Is(err, db.ErrNotFound) {
		GetMetrics().RecordFruitPick(false)
		writeError(w, http.StatusNotFound, "fruit not found")
		return
	}
	if err != nil {
		GetMetrics().RecordFruitPick(false)
		Error("pick fruit", map[string]interface{}{"rid": RequestIDFromContext(r.Context()), "fruit_id": req.FruitID}, err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}

	GetMetrics().RecordFruitPick(true)
	writeJSON(w, http.StatusCreated, pick)
}

// HandleFavorites handles GET /api/fruits/favorites?limit=n.
func (s *Server) HandleFavorites(w http.ResponseWriter, r *http.Request) {
	limit := defaultFavoritesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxFavoritesLimit)
	}

	favorites, err := s.cfg.Fruits.Favorites(r.Context(), limit)
	if err != nil {
		Error("list favorites", map[string]interface{}{"rid": RequestIDFromContext(r.Context())}, err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"favorites": favorites})
}
