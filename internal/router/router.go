package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"blindbox_dev_v1_202608/internal/controller"
	"blindbox_dev_v1_202608/internal/middleware"
)

// Controllers 控制器集合，main 装配后交给路由
type Controllers struct {
	BlindBox *controller.BlindBoxController
	Unbox    *controller.UnboxController
	UnboxLog *controller.UnboxLogController
}

// SetupRouter 创建 gin 引擎并注册全部路由
func SetupRouter(ctls *Controllers) *gin.Engine {
	r := gin.Default()
	InitRoutes(r, ctls.BlindBox, ctls.Unbox, ctls.UnboxLog)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine,
	boxCtl *controller.BlindBoxController,
	unboxCtl *controller.UnboxController,
	logCtl *controller.UnboxLogController) {
	// 1. Swagger 文档路由
	// 访问 http://localhost:8080/swagger/index.html 即可查看
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 2. API 路由组，全部要求登录
	api := r.Group("/api")
	api.Use(middleware.JWTAuth(), middleware.AuditContext())
	{
		// 盲盒管理（卖家侧 + 公开查询）
		boxes := api.Group("/blind-boxes")
		{
			// GET /api/blind-boxes
			boxes.GET("", boxCtl.ListBlindBoxes)
			boxes.GET("/:id", boxCtl.GetBlindBox)
			boxes.GET("/:id/probabilities", boxCtl.GetProbabilityTable)
			boxes.GET("/items/:item_id/probability-history", boxCtl.GetProbabilityHistory)

			seller := boxes.Group("", middleware.RequireRole(middleware.RoleSeller))
			{
				seller.POST("", boxCtl.CreateBlindBox)
				seller.POST("/:id/items", boxCtl.AddItems)
				seller.DELETE("/items/:item_id", boxCtl.RemoveItem)
				seller.DELETE("/:id/items", boxCtl.ClearItems)
				seller.POST("/:id/drop-rates", boxCtl.ComputeDropRates)
				seller.POST("/:id/submit", boxCtl.SubmitForApproval)
			}

			// 审核只放行 reviewer
			boxes.POST("/:id/review", middleware.RequireRole(middleware.RoleReviewer), boxCtl.ReviewBlindBox)
		}

		// 用户盲盒与开盒（买家侧）
		customerBoxes := api.Group("/customer-boxes", middleware.RequireRole(middleware.RoleCustomer))
		{
			customerBoxes.GET("", unboxCtl.ListCustomerBoxes)
			// POST /api/customer-boxes/:id/unbox
			customerBoxes.POST("/:id/unbox", middleware.UnboxRateLimit(), unboxCtl.Unbox)
		}

		// 审计日志（运营/审核侧）
		logs := api.Group("/unbox-logs", middleware.RequireRole(middleware.RoleReviewer))
		{
			logs.GET("", logCtl.ListLogs)
		}
	}
}
