package main

import (
	"errors"

	"github.com/mercato-next/internal/config"
	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/logger"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/provider"
	"github.com/mercato-next/internal/service"

	"github.com/shopspring/decimal"
)

type seedProduct struct {
	slug  string
	title string
	price string
}

type seedCategory struct {
	slug     string
	name     string
	products []seedProduct
}

var catalog = []seedCategory{
	{
		slug: "electronics",
		name: "电子产品",
		products: []seedProduct{
			{slug: "wireless-earbuds", title: "无线耳机", price: "199.00"},
			{slug: "usb-c-charger", title: "USB-C 充电器", price: "89.00"},
		},
	},
	{
		slug: "lifestyle",
		name: "生活用品",
		products: []seedProduct{
			{slug: "ceramic-mug", title: "陶瓷马克杯", price: "39.90"},
		},
	},
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, cfg.Database.LogLevel, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	container := provider.NewContainer(cfg)
	defer container.Close()

	var productIDs []uint
	for _, cat := range catalog {
		category, err := container.CategoryService.Create(service.CreateCategoryInput{Slug: cat.slug, Name: cat.name})
		if errors.Is(err, service.ErrCategoryExists) {
			logger.Infow("seed_category_exists", "slug", cat.slug)
			continue
		}
		if err != nil {
			stdLog.Fatalf("Failed to seed category %s: %v", cat.slug, err)
		}
		for _, item := range cat.products {
			product, err := container.ProductService.Create(service.CreateProductInput{
				CategoryID:  category.ID,
				Slug:        item.slug,
				Title:       item.title,
				PriceAmount: models.NewMoneyFromDecimal(decimal.RequireFromString(item.price)),
			})
			if errors.Is(err, service.ErrProductExists) {
				continue
			}
			if err != nil {
				stdLog.Fatalf("Failed to seed product %s: %v", item.slug, err)
			}
			productIDs = append(productIDs, product.ID)
		}
	}

	vouchers := []service.CreateVoucherInput{
		{
			Code: "WELCOME10",
			VoucherTemplate: service.VoucherTemplate{
				Name:            "新人九折",
				DiscountType:    constants.DiscountTypePercentage,
				Value:           models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
				MaxUsagePerUser: 1,
			},
		},
		{
			Code: "SAVE20",
			VoucherTemplate: service.VoucherTemplate{
				Name:          "满百减二十",
				DiscountType:  constants.DiscountTypeFixed,
				Value:         models.NewMoneyFromDecimal(decimal.NewFromInt(20)),
				MinSpend:      models.NewMoneyFromDecimal(decimal.NewFromInt(100)),
				MaxTotalUsage: 500,
			},
		},
	}
	if len(productIDs) > 0 {
		vouchers = append(vouchers, service.CreateVoucherInput{
			Code: "GADGET15",
			VoucherTemplate: service.VoucherTemplate{
				Name:         "指定商品八五折",
				DiscountType: constants.DiscountTypePercentage,
				Value:        models.NewMoneyFromDecimal(decimal.NewFromInt(15)),
				ProductIDs:   productIDs[:1],
			},
		})
	}
	for _, input := range vouchers {
		voucher, err := container.VoucherAdminService.Create(input)
		if errors.Is(err, service.ErrVoucherCodeExists) {
			logger.Infow("seed_voucher_exists", "code", input.Code)
			continue
		}
		if err != nil {
			stdLog.Fatalf("Failed to seed voucher %s: %v", input.Code, err)
		}
		logger.Infow("seed_voucher_created", "voucher_id", voucher.ID, "code", voucher.Code)
	}

	logger.Infow("seed_completed", "products", len(productIDs), "vouchers", len(vouchers))
}
