package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/West13lue/stock-cbd-manager-sub000/models"
	"github.com/West13lue/stock-cbd-manager-sub000/utils"
	"github.com/West13lue/stock-cbd-manager-sub000/workflow"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// registerCustomValidators wires domain validators into gin's binding engine.
func registerCustomValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("expirytype", func(fl validator.FieldLevel) bool {
			return models.ExpiryType(fl.Field().String()).Valid()
		})
	}
}

// respondError maps engine errors onto client-facing status codes.
func respondError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorDuplicateRecord):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Message, "field": validationErr.Field})
	case errors.Is(err, workflow.ErrQueueClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// submit funnels a mutating operation through the serial queue so no two of
// them interleave. Read-only queries bypass it.
func submit(c *gin.Context, queue *workflow.SerialTaskQueue, name string, task workflow.Task) (interface{}, bool) {
	value, err := queue.Submit(c.Request.Context(), name, task)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return value, true
}

func createPurchaseOrderHandler(queue *workflow.SerialTaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		value, ok := submit(c, queue, "createPurchaseOrder", func(ctx context.Context) (interface{}, error) {
			return models.CreatePurchaseOrder(ctx, &input)
		})
		if !ok {
			return
		}
		c.JSON(http.StatusCreated, value)
	}
}

func getPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		purchaseOrder, err := models.GetPurchaseOrder(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, purchaseOrder)
	}
}

func listPurchaseOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := models.PurchaseOrderFilter{
			SupplierId: c.Query("supplier_id"),
			Status:     models.PurchaseOrderStatus(c.Query("status")),
		}
		if year := c.Query("year"); year != "" {
			n, err := strconv.Atoi(year)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
				return
			}
			filter.Year = n
		}
		if limit := c.Query("limit"); limit != "" {
			n, err := strconv.Atoi(limit)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			filter.Limit = n
		}
		orders, err := models.ListPurchaseOrders(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"purchase_orders": orders})
	}
}

func orderIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid purchase order id"})
		return 0, false
	}
	return id, true
}

func updatePurchaseOrderHandler(queue *workflow.SerialTaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		var patch models.PurchaseOrderPatch
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		value, ok := submit(c, queue, "updatePurchaseOrder", func(ctx context.Context) (interface{}, error) {
			return models.UpdatePurchaseOrder(ctx, id, &patch)
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, value)
	}
}

func deletePurchaseOrderHandler(queue *workflow.SerialTaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		_, ok = submit(c, queue, "deletePurchaseOrder", func(ctx context.Context) (interface{}, error) {
			return nil, models.DeletePurchaseOrder(ctx, id)
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func sendPurchaseOrderHandler(queue *workflow.SerialTaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		value, ok := submit(c, queue, "sendPurchaseOrder", func(ctx context.Context) (interface{}, error) {
			return models.SendPurchaseOrder(ctx, id)
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, value)
	}
}

type confirmOrderInput struct {
	ExpectedDeliveryAt *time.Time `json:"expected_delivery_at"`
}

func confirmPurchaseOrderHandler(queue *workflow.SerialTaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		var input confirmOrderInput
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		value, ok := submit(c, queue, "confirmPurchaseOrder", func(ctx context.Context) (interface{}, error) {
			return models.ConfirmPurchaseOrder(ctx, id, input.ExpectedDeliveryAt)
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, value)
	}
}

type cancelOrderInput struct {
	Reason string `json:"reason"`
}

func cancelPurchaseOrderHandler(queue *workflow.SerialTaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		var input cancelOrderInput
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&input); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		value, ok := submit(c, queue, "cancelPurchaseOrder", func(ctx context.Context) (interface{}, error) {
			return models.CancelPurchaseOrder(ctx, id, input.Reason)
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, value)
	}
}

type receiveItemsInput struct {
	Lines   []models.ReceivedLine `json:"lines" binding:"required,min=1,dive"`
	Options models.ReceiveOptions `json:"options"`
}

func receiveItemsHandler(queue *workflow.SerialTaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderIdParam(c)
		if !ok {
			return
		}
		var input receiveItemsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		value, ok := submit(c, queue, "receiveItems", func(ctx context.Context) (interface{}, error) {
			return workflow.ReceiveItems(ctx, id, input.Lines, input.Options)
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, value)
	}
}

func createBatchHandler(queue *workflow.SerialTaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewBatch
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		value, ok := submit(c, queue, "createBatch", func(ctx context.Context) (interface{}, error) {
			return models.CreateBatch(ctx, &input)
		})
		if !ok {
			return
		}
		c.JSON(http.StatusCreated, value)
	}
}

func getBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batch, err := models.GetBatch(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, batch)
	}
}

func expiringBatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		days := 30
		if v := c.Query("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid days"})
				return
			}
			days = n
		}
		batches, err := models.GetExpiringSoon(c.Request.Context(), days)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"batches": batches})
	}
}

func expiredBatchesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batches, err := models.GetExpired(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"batches": batches})
	}
}

type consumeStockInput struct {
	ProductId string          `json:"product_id" binding:"required"`
	Grams     decimal.Decimal `json:"grams" binding:"required"`
	Reason    string          `json:"reason"`
}

func consumeStockHandler(queue *workflow.SerialTaskQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input consumeStockInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		value, ok := submit(c, queue, "consumeStock", func(ctx context.Context) (interface{}, error) {
			return models.ConsumeStock(ctx, input.ProductId, input.Grams, input.Reason)
		})
		if !ok {
			return
		}
		c.JSON(http.StatusOK, value)
	}
}

func getProductStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := models.GetProductStock(c.Request.Context(), c.Param("productId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
