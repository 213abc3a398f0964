package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/middleware"
	"github.com/kendall-kelly/printhouse-api/models"
)

// RegisterRoutes mounts every endpoint on v1. authenticate validates the
// bearer token; tests pass a mock in its place.
func RegisterRoutes(v1 *gin.RouterGroup, authenticate gin.HandlerFunc) {
	shopStaff := middleware.RequireRole(models.RoleBusinessOwner, models.RoleWorkshopManager, models.RoleOperator)
	designStaff := middleware.RequireRole(models.RoleBusinessOwner, models.RoleDesigner, models.RoleOperator)
	owners := middleware.RequireRole(models.RoleBusinessOwner, models.RoleOperator)
	customers := middleware.RequireRole(models.RoleCustomer, models.RoleOperator)
	operators := middleware.RequireRole(models.RoleOperator)

	// Catalog reads are public
	catalog := v1.Group("/catalog")
	{
		catalog.GET("/locations", ListPrintLocations)
		catalog.GET("/sections", ListClothingSections)
		catalog.GET("/designs", ListDesigns)
		catalog.GET("/enums", GetCatalogEnums)
	}

	// Profile creation only needs a valid token
	v1.POST("/users", authenticate, CreateUser)

	api := v1.Group("", authenticate, middleware.LoadActor())
	{
		api.GET("/users/me", GetMyProfile)
		api.PUT("/users/me", UpdateMyProfile)

		api.POST("/businesses", CreateBusiness)
		api.POST("/businesses/staff", owners, AddStaff)

		api.POST("/catalog/locations", operators, CreatePrintLocation)
		api.POST("/catalog/sections", operators, CreateClothingSection)
		api.POST("/catalog/designs", operators, CreateDesign)

		orders := api.Group("/orders")
		{
			orders.POST("", customers, CreateOrder)
			orders.GET("", ListOrders)
			orders.GET("/:id", GetOrder)
			orders.POST("/:id/items", AddOrderItem)
			orders.DELETE("/:id/items/:item_id", RemoveOrderItem)
			orders.POST("/:id/sections", AddOrderSection)
			orders.PATCH("/:id/sections/:section_id", UpdateOrderSection)
			orders.DELETE("/:id/sections/:section_id", RemoveOrderSection)
			orders.POST("/:id/submit", customers, SubmitOrder)
			orders.POST("/:id/confirm", shopStaff, ConfirmOrder)
			orders.POST("/:id/cancel", CancelOrder)
			orders.POST("/:id/return", ReturnOrder)
			orders.POST("/:id/complete", shopStaff, CompleteOrder)
			orders.POST("/:id/stages/:stage/advance", shopStaff, AdvanceOrderStage)
			orders.PUT("/:id/stages/:stage/payment", shopStaff, SetOrderStagePayment)
		}

		api.GET("/order-items/:item_id/set-designs", ListItemSetDesigns)
		sets := api.Group("/set-designs")
		{
			sets.POST("", designStaff, OpenSetDesign)
			sets.GET("/:id", GetSetDesign)
			sets.POST("/:id/assign", owners, AssignSetDesign)
			sets.POST("/:id/begin", designStaff, BeginSetDesign)
			sets.POST("/:id/submit", designStaff, SubmitSetDesign)
			sets.POST("/:id/approve", ApproveSetDesign)
			sets.POST("/:id/reject", RejectSetDesign)
			sets.POST("/:id/revision", RequestSetRevision)
			sets.POST("/:id/new-version", designStaff, NewSetDesignVersion)
			sets.POST("/:id/complete", designStaff, CompleteSetDesign)
		}

		workshops := api.Group("/workshops", shopStaff)
		{
			workshops.POST("", owners, CreateWorkshop)
			workshops.GET("/:id/capacity", GetWorkshopCapacity)
			workshops.PUT("/:id/capacity", SetWorkshopCapacity)
			workshops.POST("/:id/activate", ActivateWorkshop)
			workshops.POST("/:id/deactivate", DeactivateWorkshop)
			workshops.POST("/:id/audit", AuditWorkshopCapacity)
			workshops.GET("/:id/tasks", ListWorkshopTasks)
		}

		tasks := api.Group("/tasks", shopStaff)
		{
			tasks.POST("", CreateTask)
			tasks.GET("/:id", GetTask)
			tasks.PATCH("/:id", ResizeTask)
			tasks.POST("/:id/reports", ReportTaskProgress)
			tasks.POST("/:id/complete", CompleteTask)
			tasks.POST("/:id/cancel", CancelTask)
		}

		tenders := api.Group("/tenders")
		{
			tenders.POST("", customers, OpenTender)
			tenders.GET("", ListOpenTenders)
			tenders.GET("/:id", GetTender)
			tenders.POST("/:id/bids", owners, PlaceBid)
			tenders.POST("/:id/bids/:bid_id/accept", AcceptBid)
			tenders.POST("/:id/close", CloseTender)
			tenders.POST("/:id/cancel", CancelTender)
		}

		api.GET("/stages/:stage_id/payments", ListStagePayments)
		api.POST("/stages/:stage_id/payments", BeginPayment)
		api.POST("/payments/:id/finalize", FinalizePayment)

		api.POST("/uploads/artwork", UploadArtwork)

		ops := api.Group("", operators)
		{
			ops.GET("/coordinator/failures", ListCoordinatorFailures)
			ops.POST("/coordinator/replay/:event_id", ReplayEvent)
			ops.GET("/events/:aggregate_id", ListAggregateEvents)
			ops.GET("/notifications/failures", ListNotificationFailures)
		}
	}
}
