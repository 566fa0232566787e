// Ledger read endpoints: current stock and sales reports, addressed by the
// owner's phone number.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-inventory-bot/internal/domain"
	"github.com/tbourn/go-inventory-bot/internal/services"
)

// InventoryItem is one stock line in a listing.
type InventoryItem struct {
	ProductID   string    `json:"product_id"`
	Name        string    `json:"name"         example:"Leche"`
	Brand       string    `json:"brand"        example:"Lala"`
	Category    string    `json:"category"     example:"Lácteos"`
	Amount      string    `json:"amount"       example:"1 litro"`
	Quantity    int       `json:"quantity"     example:"3"`
	BuyingPrice float64   `json:"buying_price" example:"10"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListInventoryResponse is a paginated stock listing.
type ListInventoryResponse struct {
	Items      []InventoryItem `json:"items"`
	Pagination Pagination      `json:"pagination"`
}

// ReportResponse is the JSON form of a sales report. Money fields are
// fixed two-decimal strings.
type ReportResponse struct {
	Kind      string    `json:"kind"       example:"report"`
	Timeframe string    `json:"timeframe"  example:"days"`
	Units     int       `json:"units"      example:"7"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	UnitsSold int       `json:"units_sold" example:"5"`
	Revenue   string    `json:"revenue"    example:"75.00"`
	Profit    string    `json:"profit"     example:"25.00"`
}

func toInventoryItem(e domain.InventoryEntry) InventoryItem {
	return InventoryItem{
		ProductID:   e.ProductID,
		Name:        e.Product.Name,
		Brand:       e.Product.Brand,
		Category:    e.Product.Category,
		Amount:      e.Product.Amount,
		Quantity:    e.Quantity,
		BuyingPrice: e.BuyingPrice,
		UpdatedAt:   e.UpdatedAt,
	}
}

// resolveUser maps the :phone path parameter to a known user, writing the
// error response itself when it cannot.
func (h *Handlers) resolveUser(c *gin.Context) (*domain.User, bool) {
	u, err := h.users.Lookup(c.Request.Context(), c.Param("phone"))
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return nil, false
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "user lookup failed")
		return nil, false
	}
	return u, true
}

// ListInventory godoc
// @ID          listInventory
// @Summary     List a user's stock
// @Description Returns the user's live inventory entries (quantity > 0). Supports weak ETag via If-None-Match and may return 304.
// @Tags        Inventory
// @Produce     json
// @Param       phone      path   string  true   "Owner phone number"
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page       query  int     false  "Page number (1-based)"   minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page (max 100)" minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListInventoryResponse
// @Success     304  "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown user"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{phone}/inventory [get]
func (h *Handlers) ListInventory(c *gin.Context) {
	u, found := h.resolveUser(c)
	if !found {
		return
	}
	page, pageSize := clampPagination(c)

	// Weak ETag over (user, page, count, last movement). Best effort.
	if count, maxTS, err := h.inv.InventoryStats(c.Request.Context(), u.ID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UTC().UnixNano()
		}
		etag := fmt.Sprintf(`W/"inventory:%s:%d:%d:%d:%d"`, u.ID, page, pageSize, count, ts)
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	entries, total, err := h.inv.ListInventory(c.Request.Context(), u.ID, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list inventory")
		return
	}

	items := make([]InventoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, toInventoryItem(e))
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListInventoryResponse{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// Report godoc
// @ID          salesReport
// @Summary     Sales report
// @Description Aggregates units sold, revenue and profit over the last N days, weeks or months (30-day months).
// @Tags        Inventory
// @Produce     json
// @Param       phone      path   string  true   "Owner phone number"
// @Param       timeframe  query  string  false  "days | weeks | months" default(days)
// @Param       units      query  int     false  "Number of timeframe units" minimum(1) default(1)
// @Success     200  {object}  handlers.ReportResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid timeframe"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown user"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{phone}/report [get]
func (h *Handlers) Report(c *gin.Context) {
	unit := c.DefaultQuery("timeframe", services.TimeframeDays)
	units := 1
	if raw := c.Query("units"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeInvalidTimeframe, "units must be an integer")
			return
		}
		units = n
	}

	u, found := h.resolveUser(c)
	if !found {
		return
	}

	rep, err := h.inv.GenerateReport(c.Request.Context(), u.ID, unit, units)
	switch {
	case errors.Is(err, services.ErrInvalidTimeframe):
		fail(c, http.StatusBadRequest, ErrCodeInvalidTimeframe, err.Error())
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeReportFailed, "could not build report")
		return
	}

	ok(c, http.StatusOK, ReportResponse{
		Kind:      string(rep.Kind),
		Timeframe: rep.Timeframe,
		Units:     rep.Units,
		From:      rep.From,
		To:        rep.To,
		UnitsSold: rep.UnitsSold,
		Revenue:   rep.Revenue.StringFixed(2),
		Profit:    rep.Profit.StringFixed(2),
	})
}
