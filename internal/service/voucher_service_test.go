package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/repository"

	"gorm.io/gorm"
)

type voucherTestFixture struct {
	db       *gorm.DB
	svc      *VoucherService
	admin    *VoucherAdminService
	category *models.Category
	other    *models.Category
	book     *models.Product // 100.00，属于 category
	pen      *models.Product // 30.00，属于 other
	cheap    *models.Product // 99.99，属于 category
}

func setupVoucherFixture(t *testing.T, name string) *voucherTestFixture {
	t.Helper()
	db := setupServiceTestDB(t, name)
	category := &models.Category{Slug: "books", Name: "Books"}
	other := &models.Category{Slug: "stationery", Name: "Stationery"}
	for _, c := range []*models.Category{category, other} {
		if err := db.Create(c).Error; err != nil {
			t.Fatalf("create category failed: %v", err)
		}
	}
	newProduct := func(slug string, categoryID uint, price string) *models.Product {
		p := &models.Product{CategoryID: categoryID, Slug: slug, Title: slug, PriceAmount: models.MustMoney(price), IsActive: true}
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("create product failed: %v", err)
		}
		return p
	}

	cfg := newServiceTestConfig()
	voucherRepo := repository.NewVoucherRepository(db)
	usageRepo := repository.NewVoucherUsageRepository(db)
	productRepo := repository.NewProductRepository(db)
	return &voucherTestFixture{
		db:       db,
		svc:      NewVoucherService(cfg, voucherRepo, usageRepo, productRepo),
		admin:    NewVoucherAdminService(cfg, voucherRepo, usageRepo, repository.NewCategoryRepository(db), productRepo, repository.NewUserRepository(db), nil),
		category: category,
		other:    other,
		book:     newProduct("book", category.ID, "100.00"),
		pen:      newProduct("pen", other.ID, "30.00"),
		cheap:    newProduct("cheap-book", category.ID, "99.99"),
	}
}

func (f *voucherTestFixture) createVoucher(t *testing.T, input CreateVoucherInput) *models.Voucher {
	t.Helper()
	if input.DiscountType == "" {
		input.DiscountType = constants.DiscountTypeFixed
	}
	if input.Value.Decimal.IsZero() {
		input.Value = models.MustMoney("10")
	}
	voucher, err := f.admin.Create(input)
	if err != nil {
		t.Fatalf("create voucher %s failed: %v", input.Code, err)
	}
	return voucher
}

func cartOf(lines ...CartLine) VoucherCart {
	return VoucherCart{Lines: lines}
}

func TestCalculateVoucherDiscount(t *testing.T) {
	cases := []struct {
		name     string
		voucher  models.Voucher
		subtotal string
		want     string
	}{
		{"percentage", models.Voucher{DiscountType: constants.DiscountTypePercentage, Value: models.MustMoney("10")}, "200", "20.00"},
		{"percentage rounds half up", models.Voucher{DiscountType: constants.DiscountTypePercentage, Value: models.MustMoney("15")}, "33.33", "5.00"},
		{"full percentage", models.Voucher{DiscountType: constants.DiscountTypePercentage, Value: models.MustMoney("100")}, "12.34", "12.34"},
		{"fixed capped by subtotal", models.Voucher{DiscountType: constants.DiscountTypeFixed, Value: models.MustMoney("50")}, "30", "30.00"},
		{"fixed", models.Voucher{DiscountType: constants.DiscountTypeFixed, Value: models.MustMoney("5")}, "30", "5.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calculateVoucherDiscount(&tc.voucher, models.MustMoney(tc.subtotal))
			if err != nil {
				t.Fatalf("calculate failed: %v", err)
			}
			if got.StringFixed(2) != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.StringFixed(2))
			}
		})
	}

	if _, err := calculateVoucherDiscount(&models.Voucher{DiscountType: "bogus"}, models.MustMoney("1")); !errors.Is(err, ErrVoucherInvalid) {
		t.Fatalf("expected invalid voucher, got %v", err)
	}
}

func TestMergeCartLines(t *testing.T) {
	merged, err := mergeCartLines([]CartLine{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 1}, {ProductID: 1, Quantity: 2}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if len(merged) != 2 || merged[0].Quantity != 3 {
		t.Fatalf("unexpected merged lines: %+v", merged)
	}
	if _, err := mergeCartLines(nil); !errors.Is(err, ErrVoucherCartInvalid) {
		t.Fatalf("empty cart should be invalid, got %v", err)
	}
	if _, err := mergeCartLines([]CartLine{{ProductID: 1, Quantity: 0}}); !errors.Is(err, ErrVoucherCartInvalid) {
		t.Fatalf("zero quantity should be invalid, got %v", err)
	}
}

func TestVoucherApplyPercentage(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_apply_percentage")
	user := createServiceTestUser(t, f.db, "percentage@example.com")
	f.createVoucher(t, CreateVoucherInput{
		Code: "save10",
		VoucherTemplate: VoucherTemplate{
			DiscountType: constants.DiscountTypePercentage,
			Value:        models.MustMoney("10"),
		},
	})

	result, err := f.svc.Apply(context.Background(), " SAVE10 ", user.ID, cartOf(CartLine{ProductID: f.book.ID, Quantity: 2}))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.Subtotal.StringFixed(2) != "200.00" || result.DiscountAmount.StringFixed(2) != "20.00" {
		t.Fatalf("unexpected quote: %+v", result.VoucherQuote)
	}
	if result.ReceiptNo == "" || result.UsageID == 0 {
		t.Fatalf("receipt should be issued: %+v", result)
	}

	var voucher models.Voucher
	f.db.First(&voucher, result.VoucherID)
	if voucher.UsageCount != 1 {
		t.Fatalf("usage_count should be 1, got %d", voucher.UsageCount)
	}
}

func TestVoucherApplyFixedCappedBySubtotal(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_apply_fixed")
	user := createServiceTestUser(t, f.db, "fixed@example.com")
	f.createVoucher(t, CreateVoucherInput{Code: "FIFTY", VoucherTemplate: VoucherTemplate{Value: models.MustMoney("50")}})

	result, err := f.svc.Apply(context.Background(), "FIFTY", user.ID, cartOf(CartLine{ProductID: f.pen.ID, Quantity: 1}))
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.DiscountAmount.StringFixed(2) != "30.00" {
		t.Fatalf("discount should be capped at 30.00, got %s", result.DiscountAmount.StringFixed(2))
	}
}

func TestVoucherApplyMinimumSpend(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_min_spend")
	user := createServiceTestUser(t, f.db, "minspend@example.com")
	f.createVoucher(t, CreateVoucherInput{Code: "MIN100", VoucherTemplate: VoucherTemplate{MinSpend: models.MustMoney("100")}})

	_, err := f.svc.Apply(context.Background(), "MIN100", user.ID, cartOf(CartLine{ProductID: f.cheap.ID, Quantity: 1}))
	if !errors.Is(err, ErrVoucherMinimumSpendNotMet) {
		t.Fatalf("expected minimum spend not met, got %v", err)
	}
	if _, err := f.svc.Apply(context.Background(), "MIN100", user.ID, cartOf(CartLine{ProductID: f.book.ID, Quantity: 1})); err != nil {
		t.Fatalf("exact minimum spend should pass: %v", err)
	}
}

func TestVoucherApplyRejections(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_rejections")
	user := createServiceTestUser(t, f.db, "reject@example.com")
	inactive := false
	past := time.Now().Add(-time.Hour)
	f.createVoucher(t, CreateVoucherInput{Code: "OFF", VoucherTemplate: VoucherTemplate{IsActive: &inactive}})
	f.createVoucher(t, CreateVoucherInput{Code: "OLD", VoucherTemplate: VoucherTemplate{ExpiresAt: &past}})
	f.createVoucher(t, CreateVoucherInput{Code: "PENS", VoucherTemplate: VoucherTemplate{CategoryIDs: []uint{f.other.ID}}})
	f.createVoucher(t, CreateVoucherInput{Code: "PENS50", VoucherTemplate: VoucherTemplate{CategoryIDs: []uint{f.other.ID}, MinSpend: models.MustMoney("50")}})
	f.createVoucher(t, CreateVoucherInput{Code: "VIP", VoucherTemplate: VoucherTemplate{QualificationType: constants.QualificationTargeted}})

	bookCart := cartOf(CartLine{ProductID: f.book.ID, Quantity: 1})
	cases := []struct {
		code string
		cart VoucherCart
		want error
	}{
		{"MISSING", bookCart, ErrVoucherNotFound},
		{"OFF", bookCart, ErrVoucherInactive},
		{"OLD", bookCart, ErrVoucherExpired},
		{"PENS", bookCart, ErrVoucherNotApplicable},
		{"PENS50", bookCart, ErrVoucherMinimumSpendNotMet},
		{"PENS50", cartOf(CartLine{ProductID: f.pen.ID, Quantity: 1}), ErrVoucherMinimumSpendNotMet},
		{"VIP", bookCart, ErrVoucherNotEligible},
		{"PENS", cartOf(CartLine{ProductID: 9999, Quantity: 1}), ErrVoucherCartInvalid},
	}
	for _, tc := range cases {
		if _, err := f.svc.Apply(context.Background(), tc.code, user.ID, tc.cart); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.code, tc.want, err)
		}
	}

	var usages int64
	f.db.Model(&models.VoucherUsage{}).Count(&usages)
	if usages != 0 {
		t.Fatalf("rejected applies must not record usage, got %d", usages)
	}
}

func TestVoucherApplyScopedSubtotal(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_scoped")
	user := createServiceTestUser(t, f.db, "scoped@example.com")
	f.createVoucher(t, CreateVoucherInput{
		Code: "BOOKS20",
		VoucherTemplate: VoucherTemplate{
			DiscountType: constants.DiscountTypePercentage,
			Value:        models.MustMoney("20"),
			CategoryIDs:  []uint{f.category.ID},
		},
	})

	quote, err := f.svc.Preview(context.Background(), "BOOKS20", user.ID, cartOf(
		CartLine{ProductID: f.book.ID, Quantity: 1},
		CartLine{ProductID: f.pen.ID, Quantity: 3},
	))
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if quote.Subtotal.StringFixed(2) != "100.00" || quote.DiscountAmount.StringFixed(2) != "20.00" {
		t.Fatalf("only scoped lines should count: %+v", quote)
	}
	var voucher models.Voucher
	f.db.First(&voucher, quote.VoucherID)
	if voucher.UsageCount != 0 {
		t.Fatalf("preview must not consume usage")
	}
}

func TestVoucherApplyTargetedEligibleUser(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_targeted")
	alice := createServiceTestUser(t, f.db, "alice_target@example.com")
	bob := createServiceTestUser(t, f.db, "bob_target@example.com")
	f.createVoucher(t, CreateVoucherInput{Code: "ALICE", VoucherTemplate: VoucherTemplate{
		QualificationType: constants.QualificationTargeted,
		EligibleUserIDs:   []uint{alice.ID},
	}})

	cart := cartOf(CartLine{ProductID: f.book.ID, Quantity: 1})
	if _, err := f.svc.Apply(context.Background(), "ALICE", alice.ID, cart); err != nil {
		t.Fatalf("eligible user apply failed: %v", err)
	}
	if _, err := f.svc.Apply(context.Background(), "ALICE", bob.ID, cart); !errors.Is(err, ErrVoucherNotEligible) {
		t.Fatalf("expected not eligible, got %v", err)
	}
}

func TestVoucherConcurrentApplyRespectsGlobalCap(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_global_cap")
	const capacity = 3
	const workers = 10
	f.createVoucher(t, CreateVoucherInput{Code: "LIMITED", VoucherTemplate: VoucherTemplate{MaxTotalUsage: capacity}})
	users := make([]*models.User, workers)
	for i := range users {
		users[i] = createServiceTestUser(t, f.db, "cap_"+string(rune('a'+i))+"@example.com")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := f.svc.Apply(context.Background(), "LIMITED", userID, cartOf(CartLine{ProductID: f.book.ID, Quantity: 1}))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrVoucherGloballyExhausted) {
				t.Errorf("unexpected apply error: %v", err)
			}
		}(users[i].ID)
	}
	wg.Wait()

	if succeeded != capacity {
		t.Fatalf("expected %d successful applies, got %d", capacity, succeeded)
	}
	var usages int64
	f.db.Model(&models.VoucherUsage{}).Count(&usages)
	var voucher models.Voucher
	f.db.Where("code = ?", "LIMITED").First(&voucher)
	if usages != capacity || voucher.UsageCount != capacity {
		t.Fatalf("usage rows=%d counter=%d, want %d", usages, voucher.UsageCount, capacity)
	}
}

func TestVoucherConcurrentApplyRespectsPerUserLimit(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_per_user")
	user := createServiceTestUser(t, f.db, "per_user@example.com")
	f.createVoucher(t, CreateVoucherInput{Code: "ONCE", VoucherTemplate: VoucherTemplate{MaxUsagePerUser: 1}})

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Apply(context.Background(), "ONCE", user.ID, cartOf(CartLine{ProductID: f.book.ID, Quantity: 1}))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrVoucherPerUserLimitReached) {
				t.Errorf("unexpected apply error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one success, got %d", succeeded)
	}
	var usages int64
	f.db.Model(&models.VoucherUsage{}).Where("user_id = ?", user.ID).Count(&usages)
	if usages != 1 {
		t.Fatalf("expected one usage row, got %d", usages)
	}
}

func TestVoucherListAvailable(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_list_available")
	user := createServiceTestUser(t, f.db, "available@example.com")
	f.createVoucher(t, CreateVoucherInput{Code: "OPEN", VoucherTemplate: VoucherTemplate{QualificationType: constants.QualificationAutomatic}})
	f.createVoucher(t, CreateVoucherInput{Code: "SINGLE", VoucherTemplate: VoucherTemplate{QualificationType: constants.QualificationAutomatic, MaxUsagePerUser: 1}})
	f.createVoucher(t, CreateVoucherInput{Code: "HIDDEN"})

	list, err := f.svc.ListAvailable(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("list available failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 available vouchers, got %d", len(list))
	}

	if _, err := f.svc.Apply(context.Background(), "SINGLE", user.ID, cartOf(CartLine{ProductID: f.book.ID, Quantity: 1})); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	list, err = f.svc.ListAvailable(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("list available failed: %v", err)
	}
	if len(list) != 1 || list[0].Code != "OPEN" {
		t.Fatalf("capped voucher should be hidden: %+v", list)
	}
}

// collidingUsageRepository 写入核销记录时总是报唯一约束冲突
type collidingUsageRepository struct {
	repository.VoucherUsageRepository
	creates *int
}

func (r collidingUsageRepository) WithTx(tx *gorm.DB) repository.VoucherUsageRepository {
	return collidingUsageRepository{VoucherUsageRepository: r.VoucherUsageRepository.WithTx(tx), creates: r.creates}
}

func (r collidingUsageRepository) Create(*models.VoucherUsage) error {
	*r.creates++
	return gorm.ErrDuplicatedKey
}

func TestVoucherApplyRetriesUserSeqCollision(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_seq_collision")
	user := createServiceTestUser(t, f.db, "collision@example.com")
	voucher := f.createVoucher(t, CreateVoucherInput{Code: "RACE", VoucherTemplate: VoucherTemplate{MaxTotalUsage: 5}})

	creates := 0
	cfg := newServiceTestConfig()
	svc := NewVoucherService(cfg,
		repository.NewVoucherRepository(f.db),
		collidingUsageRepository{VoucherUsageRepository: repository.NewVoucherUsageRepository(f.db), creates: &creates},
		repository.NewProductRepository(f.db),
	)

	_, err := svc.Apply(context.Background(), "RACE", user.ID, cartOf(CartLine{ProductID: f.book.ID, Quantity: 1}))
	if !errors.Is(err, ErrVoucherPerUserLimitReached) {
		t.Fatalf("expected per user limit after retries, got %v", err)
	}
	if creates != cfg.Voucher.ApplyRetryLimit {
		t.Fatalf("expected %d attempts, got %d", cfg.Voucher.ApplyRetryLimit, creates)
	}

	var reloaded models.Voucher
	if err := f.db.First(&reloaded, voucher.ID).Error; err != nil {
		t.Fatalf("reload voucher failed: %v", err)
	}
	if reloaded.UsageCount != 0 {
		t.Fatalf("rolled back attempts must not leave counter increments, got %d", reloaded.UsageCount)
	}
	var usages int64
	f.db.Model(&models.VoucherUsage{}).Count(&usages)
	if usages != 0 {
		t.Fatalf("no usage rows expected, got %d", usages)
	}
}
