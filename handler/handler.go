package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"storefront/model"
	"storefront/service"
)

const (
	maxUploadBytes = 10 << 20

	loginPage    = "/login.html"
	registerPage = "/register.html"
)

// Options configures the session cookie and static directories.
type Options struct {
	CookieName   string
	CookieSecure bool
	SessionTTL   time.Duration
	UploadDir    string
	PublicDir    string
}

// Handler is the HTTP layer that talks to service.Service
type Handler struct {
	svc    service.ServiceInterface
	auth   service.Authenticator
	images ImageStore
	opts   Options
}

// NewHandler returns a Handler instance
func NewHandler(s service.ServiceInterface, a service.Authenticator, images ImageStore, opts Options) *Handler {
	if opts.CookieName == "" {
		opts.CookieName = "session"
	}
	return &Handler{svc: s, auth: a, images: images, opts: opts}
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(logRequests, h.withSession)

	// Catalog
	r.HandleFunc("/", h.Index).Methods("GET")
	r.HandleFunc("/products/{type}", h.ProductsByType).Methods("GET")
	r.HandleFunc("/view/{id}", h.ViewProduct).Methods("GET")

	// Admin
	r.HandleFunc("/admin", h.Admin).Methods("GET")
	r.HandleFunc("/addproduct", h.AddProduct).Methods("POST")
	r.HandleFunc("/updateproduct", h.UpdateProduct).Methods("POST")

	// Cart and checkout
	r.HandleFunc("/addtocart/{id}", h.AddToCart).Methods("GET")
	r.HandleFunc("/checkout", h.CheckoutPage).Methods("GET")
	r.HandleFunc("/buy", h.Buy).Methods("GET")

	r.HandleFunc("/addreview", h.AddReview).Methods("POST")

	// Accounts
	r.HandleFunc("/register", h.Register).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/logout", h.Logout).Methods("GET")

	if h.opts.UploadDir != "" {
		r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.opts.UploadDir))))
	}
	if h.opts.PublicDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(h.opts.PublicDir)))
	}
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// redirectErr sends the client back to a related page, naming the failure kind.
func redirectErr(w http.ResponseWriter, r *http.Request, to string, err error) {
	kind := service.Kind(err)
	if kind == "internal" {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	sep := "?"
	if strings.Contains(to, "?") {
		sep = "&"
	}
	http.Redirect(w, r, to+sep+"error="+url.QueryEscape(kind), http.StatusFound)
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusFound)
}

// orLogin picks the login page for unauthenticated failures and fallback otherwise.
func orLogin(err error, fallback string) string {
	if errors.Is(err, service.ErrUnauthenticated) {
		return loginPage
	}
	return fallback
}

func username(r *http.Request) string {
	if s := service.SessionFrom(r.Context()); s != nil {
		return s.Username
	}
	return ""
}

// --- Catalog ---

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": username(r), "products": ps})
}

// ProductsByType handles GET /products/{type}
func (h *Handler) ProductsByType(w http.ResponseWriter, r *http.Request) {
	typ := mux.Vars(r)["type"]
	ps, err := h.svc.ListProductsByType(r.Context(), typ)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"type": model.NormalizeType(typ), "products": ps})
}

// ViewProduct handles GET /view/{id}
func (h *Handler) ViewProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.ViewProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		redirectErr(w, r, "/", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- Admin ---

// Admin handles GET /admin
func (h *Handler) Admin(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": ps})
}

// AddProduct handles POST /addproduct (multipart, with an "image" file)
func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		redirectErr(w, r, "/admin", &model.ValidationError{Field: "form", Reason: err.Error()})
		return
	}
	stock, err := model.ParseStock(r.FormValue("stock"))
	if err != nil {
		redirectErr(w, r, "/admin", err)
		return
	}
	price, err := model.ParsePrice(r.FormValue("price"))
	if err != nil {
		redirectErr(w, r, "/admin", err)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		redirectErr(w, r, "/admin", &model.ValidationError{Field: "image", Reason: "required"})
		return
	}
	defer file.Close()

	image, err := h.images.Save(file, header)
	if err != nil {
		redirectErr(w, r, "/admin", err)
		return
	}
	draft := model.ProductDraft{
		Name:        r.FormValue("name"),
		Stock:       stock,
		Price:       price,
		Description: r.FormValue("description"),
		Image:       image,
		Type:        r.FormValue("type"),
	}
	if _, err := h.svc.CreateProduct(r.Context(), draft); err != nil {
		h.discardImage(image)
		redirectErr(w, r, "/admin", err)
		return
	}
	redirect(w, r, "/admin")
}

// UpdateProduct handles POST /updateproduct. Only submitted, non-empty
// fields are changed; discount=0 ends a sale.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		redirectErr(w, r, "/admin", &model.ValidationError{Field: "form", Reason: err.Error()})
		return
	}
	patch, err := patchFromForm(r)
	if err != nil {
		redirectErr(w, r, "/admin", err)
		return
	}
	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		image, err := h.images.Save(file, header)
		if err != nil {
			redirectErr(w, r, "/admin", err)
			return
		}
		patch.Image = &image
	}
	if err := h.svc.UpdateProduct(r.Context(), r.FormValue("id"), patch); err != nil {
		if patch.Image != nil {
			h.discardImage(*patch.Image)
		}
		redirectErr(w, r, "/admin", err)
		return
	}
	redirect(w, r, "/admin")
}

// discardImage removes an upload that no product ended up referencing.
func (h *Handler) discardImage(name string) {
	if err := h.images.Remove(name); err != nil {
		log.Printf("remove orphan image %s: %v", name, err)
	}
}

func formValue(r *http.Request, key string) (string, bool) {
	v := strings.TrimSpace(r.FormValue(key))
	return v, v != ""
}

func patchFromForm(r *http.Request) (model.ProductPatch, error) {
	var p model.ProductPatch
	if v, ok := formValue(r, "name"); ok {
		p.Name = &v
	}
	if v, ok := formValue(r, "description"); ok {
		p.Description = &v
	}
	if v, ok := formValue(r, "type"); ok {
		p.Type = &v
	}
	if v, ok := formValue(r, "stock"); ok {
		n, err := model.ParseStock(v)
		if err != nil {
			return p, err
		}
		p.Stock = &n
	}
	if v, ok := formValue(r, "price"); ok {
		d, err := model.ParsePrice(v)
		if err != nil {
			return p, err
		}
		p.Price = &d
	}
	if v, ok := formValue(r, "discount"); ok {
		d, err := model.ParsePrice(v)
		if err != nil {
			return p, &model.ValidationError{Field: "discount", Reason: "must be a number"}
		}
		if d.IsZero() {
			p.ClearSale = true
		} else {
			sale, err := model.NewSale(d)
			if err != nil {
				return p, err
			}
			p.Sale = sale
		}
	}
	return p, nil
}

// --- Cart and checkout ---

// AddToCart handles GET /addtocart/{id}
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	sess := service.SessionFrom(r.Context())
	if _, err := h.svc.AddToCart(r.Context(), sess, mux.Vars(r)["id"]); err != nil {
		redirectErr(w, r, orLogin(err, "/"), err)
		return
	}
	redirect(w, r, "/checkout")
}

// CheckoutPage handles GET /checkout
func (h *Handler) CheckoutPage(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Cart(r.Context(), service.SessionFrom(r.Context()))
	if err != nil {
		redirectErr(w, r, orLogin(err, "/"), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Buy handles GET /buy
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Checkout(r.Context(), service.SessionFrom(r.Context())); err != nil {
		redirectErr(w, r, orLogin(err, "/checkout"), err)
		return
	}
	redirect(w, r, "/")
}

// AddReview handles POST /addreview
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	id := r.FormValue("id")
	back := "/view/" + url.PathEscape(id)

	sess := service.SessionFrom(r.Context())
	if sess == nil {
		redirectErr(w, r, loginPage, service.ErrUnauthenticated)
		return
	}
	rating, err := strconv.Atoi(strings.TrimSpace(r.FormValue("rating")))
	if err != nil {
		redirectErr(w, r, back, &model.ValidationError{Field: "rating", Reason: "must be an integer"})
		return
	}
	if err := h.svc.AddReview(r.Context(), sess, id, r.FormValue("message"), rating); err != nil {
		redirectErr(w, r, orLogin(err, back), err)
		return
	}
	redirect(w, r, back)
}

// --- Accounts ---

// Register handles POST /register and logs the new user in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	user, pass := strings.TrimSpace(r.FormValue("username")), r.FormValue("password")
	if err := h.auth.Register(r.Context(), user, pass); err != nil {
		redirectErr(w, r, registerPage, err)
		return
	}
	tok, err := h.auth.Login(r.Context(), user, pass)
	if err != nil {
		redirectErr(w, r, loginPage, err)
		return
	}
	h.setSessionCookie(w, tok)
	redirect(w, r, "/")
}

// Login handles POST /login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	tok, err := h.auth.Login(r.Context(), strings.TrimSpace(r.FormValue("username")), r.FormValue("password"))
	if err != nil {
		redirectErr(w, r, loginPage, err)
		return
	}
	h.setSessionCookie(w, tok)
	redirect(w, r, "/")
}

// Logout handles GET /logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.opts.CookieSecure,
		MaxAge:   -1,
	})
	redirect(w, r, "/")
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.opts.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.opts.CookieSecure,
		MaxAge:   int(h.opts.SessionTTL.Seconds()),
	})
}
