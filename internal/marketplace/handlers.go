package marketplace

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/umoja/internal/domain"
	"github.com/sudo-init-do/umoja/internal/middleware"
	"github.com/sudo-init-do/umoja/internal/respond"
	"github.com/sudo-init-do/umoja/internal/store"
)

// Handler exposes the marketplace over HTTP.
type Handler struct {
	engine   *Engine
	listings *Listings
	routes   *Routes
	reviews  *Reviews
}

func NewHandler(engine *Engine, listings *Listings, routes *Routes, reviews *Reviews) *Handler {
	return &Handler{engine: engine, listings: listings, routes: routes, reviews: reviews}
}

// Register mounts the marketplace routes. auth must run before any role
// check.
func (h *Handler) Register(e *echo.Echo, auth echo.MiddlewareFunc) {
	farmerOnly := middleware.RequireRoles(domain.RoleFarmer)
	brokerOnly := middleware.RequireRoles(domain.RoleBroker)
	parties := middleware.RequireRoles(domain.RoleFarmer, domain.RoleBroker, domain.RoleAdmin)

	e.GET("/marketplace/listings", h.BrowseListings)
	e.GET("/marketplace/listings/:id", h.GetListing)
	e.GET("/farmers/:id/reviews", h.FarmerReviews)
	e.POST("/marketplace/listings/:id/bids", h.PlaceBid, auth, brokerOnly)

	farmer := e.Group("/farmer", auth, farmerOnly)
	farmer.POST("/listings", h.CreateListing)
	farmer.GET("/listings", h.MyListings)
	farmer.PATCH("/listings/:id", h.UpdateListing)
	farmer.GET("/listings/:id/bids", h.ListingBids)
	farmer.GET("/bids", h.FarmerBids)
	farmer.POST("/bids/:id/accept", h.AcceptBid)
	farmer.POST("/bids/:id/reject", h.RejectBid)
	farmer.GET("/dashboard", h.FarmerDashboard)

	broker := e.Group("/broker", auth, brokerOnly)
	broker.GET("/bids", h.BrokerBids)
	broker.POST("/bids/:id/cancel", h.CancelBid)
	broker.POST("/bids/:id/collect", h.CollectBid)
	broker.POST("/bids/:id/complete", h.CompleteBid)
	broker.POST("/bids/:id/review", h.CreateReview)
	broker.GET("/routes", h.ListRoutes)
	broker.POST("/routes", h.CreateRoute)
	broker.GET("/routes/:id", h.GetRoute)
	broker.PATCH("/routes/:id", h.UpdateRoute)
	broker.DELETE("/routes/:id", h.DeleteRoute)
	broker.GET("/dashboard", h.BrokerDashboard)

	e.GET("/bids/:id", h.GetBid, auth, parties)
	e.GET("/bids/:id/contract", h.GetContract, auth, parties)
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

const maxPageSize = 100

func queryInt(c echo.Context, name string, def int) int {
	if n, err := strconv.Atoi(c.QueryParam(name)); err == nil {
		return n
	}
	return def
}

// =========================
// Listings
// =========================

type listingRequest struct {
	ProduceType       string           `json:"produce_type"`
	QuantityAvailable decimal.Decimal  `json:"quantity_available"`
	Unit              string           `json:"unit"`
	Quality           string           `json:"quality"`
	PriceExpected     *decimal.Decimal `json:"price_expected"`
	OriginText        string           `json:"origin_text"`
	AvailableFrom     string           `json:"available_from"`
	Notes             string           `json:"notes"`
}

func (h *Handler) CreateListing(c echo.Context) error {
	farmerID, _ := middleware.Actor(c)
	var req listingRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadRequest(c, "invalid request body")
	}
	in := ListingInput{
		ProduceType:       req.ProduceType,
		QuantityAvailable: req.QuantityAvailable,
		Unit:              req.Unit,
		Quality:           req.Quality,
		PriceExpected:     req.PriceExpected,
		OriginText:        req.OriginText,
		Notes:             req.Notes,
	}
	if req.AvailableFrom != "" {
		t, err := parseDate(req.AvailableFrom)
		if err != nil {
			return respond.BadRequest(c, "available_from must be a date")
		}
		in.AvailableFrom = t
	}
	listing, err := h.listings.Create(c.Request().Context(), farmerID, in)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusCreated, listing)
}

type listingPatchRequest struct {
	QuantityAvailable *decimal.Decimal `json:"quantity_available"`
	Quality           *string          `json:"quality"`
	PriceExpected     *decimal.Decimal `json:"price_expected"`
	ClearPrice        bool             `json:"clear_price"`
	OriginText        *string          `json:"origin_text"`
	AvailableFrom     *string          `json:"available_from"`
	Notes             *string          `json:"notes"`
	Status            *string          `json:"status"`
}

func (h *Handler) UpdateListing(c echo.Context) error {
	farmerID, _ := middleware.Actor(c)
	var req listingPatchRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadRequest(c, "invalid request body")
	}
	patch := ListingPatch{
		QuantityAvailable: req.QuantityAvailable,
		Quality:           req.Quality,
		PriceExpected:     req.PriceExpected,
		ClearPrice:        req.ClearPrice,
		OriginText:        req.OriginText,
		Notes:             req.Notes,
		Status:            req.Status,
	}
	if req.AvailableFrom != nil {
		t, err := parseDate(*req.AvailableFrom)
		if err != nil {
			return respond.BadRequest(c, "available_from must be a date")
		}
		patch.AvailableFrom = &t
	}
	listing, err := h.listings.Update(c.Request().Context(), farmerID, c.Param("id"), patch)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, listing)
}

func (h *Handler) MyListings(c echo.Context) error {
	farmerID, _ := middleware.Actor(c)
	listings, err := h.listings.Mine(c.Request().Context(), farmerID, c.QueryParam("status"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listings, "count": len(listings)})
}

// BrowseListings supports produce_type, location, search, price_min,
// price_max, available_from, page and limit.
func (h *Handler) BrowseListings(c echo.Context) error {
	limit := min(max(queryInt(c, "limit", 20), 1), maxPageSize)
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	f := store.ListingFilter{
		ProduceType: strings.ToLower(c.QueryParam("produce_type")),
		Location:    c.QueryParam("location"),
		Search:      c.QueryParam("search"),
		Limit:       limit,
		Offset:      (page - 1) * limit,
	}
	for name, dst := range map[string]**decimal.Decimal{"price_min": &f.PriceMin, "price_max": &f.PriceMax} {
		if v := c.QueryParam(name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return respond.BadRequest(c, name+" must be a number")
			}
			*dst = &d
		}
	}
	if v := c.QueryParam("available_from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return respond.BadRequest(c, "available_from must be a date")
		}
		f.AvailableFrom = &t
	}

	listings, err := h.listings.Browse(c.Request().Context(), f)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": listings, "page": page, "limit": limit, "count": len(listings)})
}

func (h *Handler) GetListing(c echo.Context) error {
	listing, err := h.listings.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, listing)
}

// =========================
// Bids
// =========================

type placeBidRequest struct {
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	RouteID      string          `json:"route_id"`
	Notes        string          `json:"notes"`
}

func (h *Handler) PlaceBid(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	var req placeBidRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadRequest(c, "invalid request body")
	}
	bid, err := h.engine.PlaceBid(c.Request().Context(), brokerID, PlaceBidInput{
		ListingID:    c.Param("id"),
		Quantity:     req.Quantity,
		PricePerUnit: req.PricePerUnit,
		RouteID:      req.RouteID,
		Notes:        req.Notes,
	})
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusCreated, bid)
}

func (h *Handler) AcceptBid(c echo.Context) error {
	farmerID, _ := middleware.Actor(c)
	res, err := h.engine.AcceptBid(c.Request().Context(), farmerID, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) RejectBid(c echo.Context) error {
	farmerID, _ := middleware.Actor(c)
	bid, err := h.engine.RejectBid(c.Request().Context(), farmerID, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, bid)
}

func (h *Handler) CancelBid(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	bid, err := h.engine.CancelBid(c.Request().Context(), brokerID, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, bid)
}

func (h *Handler) CollectBid(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	bid, err := h.engine.MarkCollected(c.Request().Context(), brokerID, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, bid)
}

func (h *Handler) CompleteBid(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	bid, err := h.engine.MarkCompleted(c.Request().Context(), brokerID, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, bid)
}

func (h *Handler) GetBid(c echo.Context) error {
	userID, role := middleware.Actor(c)
	detail, err := h.engine.GetBid(c.Request().Context(), userID, role, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) BrokerBids(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	bids, counts, err := h.engine.BrokerBids(c.Request().Context(), brokerID, c.QueryParam("status"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bids": bids, "counts": counts})
}

func (h *Handler) FarmerBids(c echo.Context) error {
	farmerID, _ := middleware.Actor(c)
	inbox, err := h.engine.FarmerInbox(c.Request().Context(), farmerID, c.QueryParam("status"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": inbox})
}

func (h *Handler) ListingBids(c echo.Context) error {
	farmerID, _ := middleware.Actor(c)
	inbox, err := h.engine.ListingBids(c.Request().Context(), farmerID, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, inbox)
}

// =========================
// Routes
// =========================

type routeRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Date        string          `json:"date"`
	Capacity    int             `json:"capacity"`
	PricePerKg  decimal.Decimal `json:"price_per_kg"`
}

func (h *Handler) CreateRoute(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	var req routeRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadRequest(c, "invalid request body")
	}
	in := RouteInput{
		Name:        req.Name,
		Description: req.Description,
		Origin:      req.Origin,
		Destination: req.Destination,
		Capacity:    req.Capacity,
		PricePerKg:  req.PricePerKg,
	}
	if req.Date != "" {
		t, err := parseDate(req.Date)
		if err != nil {
			return respond.BadRequest(c, "date must be a date")
		}
		in.Date = t
	}
	route, err := h.routes.Create(c.Request().Context(), brokerID, in)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusCreated, route)
}

type routePatchRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Origin      *string          `json:"origin"`
	Destination *string          `json:"destination"`
	Date        *string          `json:"date"`
	Capacity    *int             `json:"capacity"`
	PricePerKg  *decimal.Decimal `json:"price_per_kg"`
	Status      *string          `json:"status"`
}

func (h *Handler) UpdateRoute(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	var req routePatchRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadRequest(c, "invalid request body")
	}
	patch := RoutePatch{
		Name:        req.Name,
		Description: req.Description,
		Origin:      req.Origin,
		Destination: req.Destination,
		Capacity:    req.Capacity,
		PricePerKg:  req.PricePerKg,
		Status:      req.Status,
	}
	if req.Date != nil {
		t, err := parseDate(*req.Date)
		if err != nil {
			return respond.BadRequest(c, "date must be a date")
		}
		patch.Date = &t
	}
	view, err := h.routes.Update(c.Request().Context(), brokerID, c.Param("id"), patch)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) DeleteRoute(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	if err := h.routes.Delete(c.Request().Context(), brokerID, c.Param("id")); err != nil {
		return respond.Error(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListRoutes filters by status, date and search; ?export=csv downloads the
// same rows as CSV.
func (h *Handler) ListRoutes(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	f := store.RouteFilter{Status: c.QueryParam("status"), Search: c.QueryParam("search")}
	if v := c.QueryParam("date"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return respond.BadRequest(c, "date must be a date")
		}
		f.Date = &t
	}
	views, err := h.routes.List(c.Request().Context(), brokerID, f)
	if err != nil {
		return respond.Error(c, err)
	}

	if c.QueryParam("export") == "csv" {
		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/csv")
		res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="routes.csv"`)
		res.WriteHeader(http.StatusOK)
		return WriteCSV(res, views)
	}
	return c.JSON(http.StatusOK, echo.Map{"routes": views})
}

func (h *Handler) GetRoute(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	detail, err := h.routes.Detail(c.Request().Context(), brokerID, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// =========================
// Reviews and contracts
// =========================

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *Handler) CreateReview(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return respond.BadRequest(c, "invalid request body")
	}
	review, err := h.reviews.Create(c.Request().Context(), brokerID, c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"review": review, "message": "Review submitted successfully"})
}

func (h *Handler) FarmerReviews(c echo.Context) error {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 10)
	summary, reviews, err := h.reviews.ForFarmer(c.Request().Context(), c.Param("id"), page, limit)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"summary": summary, "reviews": reviews, "page": page})
}

func (h *Handler) GetContract(c echo.Context) error {
	userID, role := middleware.Actor(c)
	contract, err := h.reviews.Contract(c.Request().Context(), userID, role, c.Param("id"))
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, contract)
}

// =========================
// Dashboards
// =========================

func (h *Handler) FarmerDashboard(c echo.Context) error {
	farmerID, _ := middleware.Actor(c)
	d, err := h.engine.FarmerDashboard(c.Request().Context(), farmerID)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) BrokerDashboard(c echo.Context) error {
	brokerID, _ := middleware.Actor(c)
	d, err := h.engine.BrokerDashboard(c.Request().Context(), brokerID)
	if err != nil {
		return respond.Error(c, err)
	}
	return c.JSON(http.StatusOK, d)
}
