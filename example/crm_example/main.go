package main

import (
	"context"
	"log"

	"CriteriaManager/config"
	"CriteriaManager/example/crm_example/model"
	"CriteriaManager/http_router"
	"CriteriaManager/resource"
	"CriteriaManager/service"
	"CriteriaManager/util/daterange"
	ft "CriteriaManager/util/filter_translator"
	"CriteriaManager/util/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// --- 资源声明 ---

func contactResource() *resource.Config {
	text := func(name string) resource.FieldAdapter {
		return resource.FieldAdapter{Name: name, Type: ft.TypeText, Column: name}
	}
	return resource.MustNew(resource.Definition{
		Name:  "contacts",
		Table: "contacts",
		Fields: []resource.FieldAdapter{
			text("first_name"),
			text("last_name"),
			text("email"),
			{Name: "score", Type: ft.TypeNumeric, Column: "score"},
			{Name: "created_at", Type: ft.TypeDateTime, Column: "created_at"},
			{Name: "source_id", Type: ft.TypeRelation, Column: "source_id"},
			{Name: "owner_is_me", Type: ft.TypeNumeric, Column: "user_id", Volatile: true},
			{Name: "tags", Type: ft.TypeMultiSelect, Pivot: &ft.Pivot{
				Table: "contact_tags", ForeignKey: "contact_id", ValueColumn: "tag",
			}},
		},
		SearchFields: []resource.SearchField{
			{Name: "first_name", Mode: resource.MatchLike},
			{Name: "last_name", Mode: resource.MatchLike},
			{Name: "email", Mode: resource.MatchExact},
			{Name: "company.name", Mode: resource.MatchLike},
		},
		Relations: []resource.Relation{
			{Name: "source", Kind: resource.BelongsTo, Table: "sources", ForeignKey: "source_id",
				Preload: "Source", Fields: []resource.FieldAdapter{text("name")}},
			{Name: "company", Kind: resource.BelongsTo, Table: "companies", ForeignKey: "company_id",
				Preload: "Company", Fields: []resource.FieldAdapter{text("name")}},
			{Name: "deals", Kind: resource.HasMany, Table: "deals", ForeignKey: "contact_id",
				Preload: "Deals", Fields: []resource.FieldAdapter{
					text("title"),
					{Name: "amount", Type: ft.TypeNumeric, Column: "amount"},
				}},
		},
		Selectable: []string{"created_at", "updated_at", "company_id"},
	})
}

func companyResource() *resource.Config {
	return resource.MustNew(resource.Definition{
		Name:         "companies",
		Table:        "companies",
		Fields:       []resource.FieldAdapter{{Name: "name", Type: ft.TypeText, Column: "name"}},
		SearchFields: []resource.SearchField{{Name: "name", Mode: resource.MatchLike}},
	})
}

// --- 基础设施初始化 ---

func initInfra(cfg *config.Config) (*service.DBManager, *service.RedisManager) {
	db, err := service.InitDB(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	if !cfg.Redis.Enabled() {
		return db, nil
	}
	redis, err := service.InitRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to init redis: %v", err)
	}
	return db, redis
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	zl := logger.Logger()

	dbm, redis := initInfra(cfg)
	defer dbm.Close()

	ops := ft.NewOperatorRegistry(ft.WithDateResolver(daterange.NewResolver(cfg.WeekStartDay)))

	registry := resource.NewRegistry()
	contacts, companies := contactResource(), companyResource()
	for _, res := range []*resource.Config{contacts, companies} {
		if err := registry.Register(res); err != nil {
			log.Fatalf("Failed to register resource: %v", err)
		}
	}
	registry.Freeze()

	opts := []service.ManagerOption{
		service.WithLogger(zl),
		service.WithOperators(ops),
		service.WithPaging(cfg.DefaultPageSize, cfg.MaxTake),
	}
	contactSvc := service.NewServiceManager(model.Contact{}, contacts, opts...)
	companySvc := service.NewServiceManager(model.Company{}, companies, opts...)

	ctx := context.Background()
	if err := contactSvc.CreateWithIndexes(ctx, nil, contactSvc.SearchIndexes()); err != nil {
		log.Fatalf("Failed to create contacts: %v", err)
	}
	if err := companySvc.Create(ctx, nil); err != nil {
		log.Fatalf("Failed to create companies: %v", err)
	}
	if err := dbm.DB.AutoMigrate(&model.Source{}, &model.Deal{}, &model.Stage{}, &model.ContactTag{}); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	storeOpts := []service.StoreOption{service.WithStoreOperators(ops), service.WithStoreLogger(zl)}
	if redis != nil {
		defer redis.Close()
		storeOpts = append(storeOpts, service.WithCache(redis, cfg.FilterCacheTTL))
	}
	filters := service.NewFilterStore(nil, registry, storeOpts...)
	if err := filters.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate filters: %v", err)
	}

	r := gin.Default()
	api := r.Group("/api/v1")

	contactRoutes := http_router.NewHTTPRouterManager(contactSvc, filters).QueryGroup(api)
	if err := contactRoutes.RegisterPreset("hot", `{"type": "rule", "query": {"type": "numeric", "rule": "score", "operator": "greater", "value": 7}}`); err != nil {
		log.Fatalf("Failed to register preset: %v", err)
	}
	contactRoutes.RegisterRoutes("/contacts")
	http_router.NewHTTPRouterManager(companySvc, filters).QueryGroup(api).RegisterRoutes("/companies")
	http_router.NewFilterRouterGroup(api, filters, zl).RegisterRoutes("/filters")

	zl.Info("listening", zap.String("port", cfg.HTTPPort))
	if err := r.Run(":" + cfg.HTTPPort); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
