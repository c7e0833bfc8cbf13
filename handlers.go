package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/buildledger/procure_backend/config"
	"github.com/buildledger/procure_backend/middlewares"
	"github.com/buildledger/procure_backend/models"
	"github.com/buildledger/procure_backend/models/reports"
	"github.com/buildledger/procure_backend/utils"
	"github.com/buildledger/procure_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// respondError maps the error taxonomy onto HTTP statuses. Soft findings
// never come through here; they ride in 200 bodies as warnings.
func respondError(c *gin.Context, err error) {
	var validationErr *utils.ValidationError
	var vendorErr *utils.VendorMismatchError
	var stateErr *utils.InvalidStateError
	var notFoundErr *utils.NotFoundError

	switch {
	case errors.As(err, &vendorErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": vendorErr.Error(), "code": "vendor_mismatch"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Error(), "code": "validation"})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error(), "code": "invalid_state"})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error(), "code": "not_found"})
	case errors.Is(err, workflow.ErrIdempotencyInProgress):
		// another request with the same X-Request-Id is still running
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "in_progress"})
	default:
		logger := config.GetLogger()
		config.LogError(logger, "handlers.go", c.FullPath(), "respondError", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return id, true
}

func queryIntPtr(c *gin.Context, name string) *int {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return &v
	}
	return nil
}

/* auth */

type signinRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func signinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		token, user, err := models.Signin(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

/* masters */

func createVendorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewVendor
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		vendor, err := models.CreateVendor(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, vendor)
	}
}

func listVendorsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name *string
		if raw := c.Query("name"); raw != "" {
			name = &raw
		}
		vendors, err := models.GetVendors(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, vendors)
	}
}

func getVendorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		vendor, err := models.GetVendor(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, vendor)
	}
}

func createProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProject
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		project, err := models.CreateProject(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, project)
	}
}

func listProjectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := models.GetProjects(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, projects)
	}
}

func getProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		project, err := models.GetProject(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, project)
	}
}

func createCostCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input models.NewCostCode
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		input.ProjectId = projectId
		costCode, err := models.CreateCostCode(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, costCode)
	}
}

func listCostCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId, ok := pathId(c, "id")
		if !ok {
			return
		}
		costCodes, err := models.GetProjectCostCodes(c.Request.Context(), projectId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, costCodes)
	}
}

/* purchase orders */

func createPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPurchaseOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		po, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, po)
	}
}

func listPurchaseOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var status *models.PurchaseOrderStatus
		if raw := c.Query("status"); raw != "" {
			s := models.PurchaseOrderStatus(raw)
			status = &s
		}
		pos, err := models.GetPurchaseOrders(c.Request.Context(), queryIntPtr(c, "project_id"), status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, pos)
	}
}

func getPurchaseOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		po, err := models.GetPurchaseOrder(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	}
}

type updatePoStatusRequest struct {
	Status models.PurchaseOrderStatus `json:"status" binding:"required"`
}

func updatePurchaseOrderStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req updatePoStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		po, err := models.UpdatePurchaseOrderStatus(c.Request.Context(), id, req.Status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, po)
	}
}

func voidPurchaseOrderLineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		poId, ok := pathId(c, "id")
		if !ok {
			return
		}
		lineId, ok := pathId(c, "lineId")
		if !ok {
			return
		}
		line, err := models.VoidPurchaseOrderLine(c.Request.Context(), poId, lineId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, line)
	}
}

/* delivery ledger */

func recordDeliveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDeliveryEvent
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		result, err := workflow.RecordDelivery(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func listDeliveriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		poId, ok := pathId(c, "id")
		if !ok {
			return
		}
		events, err := models.GetDeliveryEvents(c.Request.Context(), poId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

func remainingQuantitiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		poId, ok := pathId(c, "id")
		if !ok {
			return
		}
		remaining, err := models.RemainingQuantities(c.Request.Context(), poId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, remaining)
	}
}

type deliveryNotesRequest struct {
	Notes string `json:"notes"`
}

func updateDeliveryLineNotesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		eventId, ok := pathId(c, "id")
		if !ok {
			return
		}
		lineId, ok := pathId(c, "lineId")
		if !ok {
			return
		}
		var req deliveryNotesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		line, err := models.UpdateDeliveryLineNotes(c.Request.Context(), eventId, lineId, req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, line)
	}
}

/* invoices + match engine */

func createInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewInvoice
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		invoice, err := models.CreateInvoice(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, invoice)
	}
}

func listInvoicesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		invoices, err := models.GetInvoices(c.Request.Context(), queryIntPtr(c, "vendor_id"), queryIntPtr(c, "po_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoices)
	}
}

func getInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		invoice, err := models.GetInvoice(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, invoice)
	}
}

func getMatchResultHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		result, err := models.ActiveMatchResult(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if result == nil {
			c.JSON(http.StatusOK, gin.H{"match_status": models.MatchStatusUnmatched})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func refreshMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		result, err := workflow.RefreshInvoiceMatch(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type manualMatchRequest struct {
	PurchaseOrderId int             `json:"purchase_order_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
}

func manualMatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req manualMatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		result, err := workflow.ManualMatchInvoice(c.Request.Context(), id, req.PurchaseOrderId, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

/* tolerance policy */

func getToleranceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		setting, err := models.GetToleranceSetting(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, setting)
	}
}

func upsertToleranceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewToleranceSetting
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		setting, err := models.UpsertToleranceSetting(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, setting)
	}
}

/* import pipeline */

func createImportRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId, ok := pathId(c, "id")
		if !ok {
			return
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read file"})
			return
		}
		defer file.Close()
		fileBytes, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read file"})
			return
		}

		detail, err := models.CreateImportRun(c.Request.Context(), projectId, fileHeader.Filename, fileBytes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, detail)
	}
}

func listImportRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runs, err := models.GetImportRuns(c.Request.Context(), queryIntPtr(c, "project_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, runs)
	}
}

func getImportRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		detail, err := models.GetImportRun(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func patchImportLineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runId, ok := pathId(c, "id")
		if !ok {
			return
		}
		lineId, ok := pathId(c, "lineId")
		if !ok {
			return
		}
		var input models.PatchImportLineInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		line, err := models.PatchImportLine(c.Request.Context(), runId, lineId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, line)
	}
}

func deleteImportLineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		runId, ok := pathId(c, "id")
		if !ok {
			return
		}
		lineId, ok := pathId(c, "lineId")
		if !ok {
			return
		}
		if err := models.DeleteImportLine(c.Request.Context(), runId, lineId); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func approveImportRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		result, err := workflow.ApproveImportRun(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func rejectImportRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		run, err := models.RejectImportRun(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func listProjectMaterialsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId, ok := pathId(c, "id")
		if !ok {
			return
		}
		materials, err := models.GetProjectMaterials(c.Request.Context(), projectId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, materials)
	}
}

/* budget allocator */

func allocateBudgetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.AllocateBudgetInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		result, err := models.AllocateBudget(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func budgetSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId, ok := pathId(c, "id")
		if !ok {
			return
		}
		summary, err := models.GetBudgetSummary(c.Request.Context(), projectId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func budgetEntriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var costCode *string
		if raw := c.Query("cost_code"); raw != "" {
			costCode = &raw
		}
		entries, err := models.GetBudgetEntries(c.Request.Context(), projectId, costCode)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

type reverseEntryRequest struct {
	Memo string `json:"memo"`
}

func reverseBudgetEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req reverseEntryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		reversal, err := models.ReverseBudgetEntry(c.Request.Context(), id, req.Memo)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, reversal)
	}
}

/* reports */

func contractForecastHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectId, ok := pathId(c, "id")
		if !ok {
			return
		}
		rows, err := reports.GetContractForecastReport(c.Request.Context(), projectId)
		if err != nil {
			respondError(c, err)
			return
		}

		if c.Query("format") != "xlsx" {
			c.JSON(http.StatusOK, rows)
			return
		}

		f, err := reports.ExportContractForecastXlsx(rows)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename="+reports.ContractForecastFilename(projectId))
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "handlers.go", "contractForecastHandler", "f.Write", nil, err)
		}
	}
}

func registerRoutes(r *gin.Engine) {
	r.POST("/auth/signin", signinHandler())

	api := r.Group("/api/v1")
	api.Use(middlewares.AuthMiddleware())

	api.POST("/vendors", createVendorHandler())
	api.GET("/vendors", listVendorsHandler())
	api.GET("/vendors/:id", getVendorHandler())

	api.POST("/projects", createProjectHandler())
	api.GET("/projects", listProjectsHandler())
	api.GET("/projects/:id", getProjectHandler())
	api.POST("/projects/:id/cost-codes", createCostCodeHandler())
	api.GET("/projects/:id/cost-codes", listCostCodesHandler())
	api.GET("/projects/:id/materials", listProjectMaterialsHandler())
	api.GET("/projects/:id/budget", budgetSummaryHandler())
	api.GET("/projects/:id/budget/entries", budgetEntriesHandler())
	api.GET("/projects/:id/reports/contract-forecast", contractForecastHandler())
	api.POST("/projects/:id/imports", createImportRunHandler())

	api.POST("/purchase-orders", createPurchaseOrderHandler())
	api.GET("/purchase-orders", listPurchaseOrdersHandler())
	api.GET("/purchase-orders/:id", getPurchaseOrderHandler())
	api.PUT("/purchase-orders/:id/status", updatePurchaseOrderStatusHandler())
	api.POST("/purchase-orders/:id/lines/:lineId/void", voidPurchaseOrderLineHandler())
	api.GET("/purchase-orders/:id/deliveries", listDeliveriesHandler())
	api.GET("/purchase-orders/:id/remaining", remainingQuantitiesHandler())

	api.POST("/deliveries", recordDeliveryHandler())
	api.PUT("/deliveries/:id/lines/:lineId/notes", updateDeliveryLineNotesHandler())

	api.POST("/invoices", createInvoiceHandler())
	api.GET("/invoices", listInvoicesHandler())
	api.GET("/invoices/:id", getInvoiceHandler())
	api.GET("/invoices/:id/match", getMatchResultHandler())
	api.POST("/invoices/:id/match/refresh", refreshMatchHandler())
	api.POST("/invoices/:id/match/manual", manualMatchHandler())

	api.GET("/settings/tolerances", getToleranceHandler())
	api.PUT("/settings/tolerances", upsertToleranceHandler())

	api.GET("/imports", listImportRunsHandler())
	api.GET("/imports/:id", getImportRunHandler())
	api.PATCH("/imports/:id/lines/:lineId", patchImportLineHandler())
	api.DELETE("/imports/:id/lines/:lineId", deleteImportLineHandler())
	api.POST("/imports/:id/approve", approveImportRunHandler())
	api.POST("/imports/:id/reject", rejectImportRunHandler())

	api.POST("/budgets/allocate", allocateBudgetHandler())
	api.POST("/budget-entries/:id/reverse", reverseBudgetEntryHandler())
}
