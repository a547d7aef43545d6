package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/models"
	"github.com/mercato-next/internal/repository"
)

func TestVoucherAdminCreateValidation(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_admin_validation")

	cases := []struct {
		name  string
		input CreateVoucherInput
		want  error
	}{
		{"bad code", CreateVoucherInput{Code: "a b", VoucherTemplate: VoucherTemplate{DiscountType: constants.DiscountTypeFixed, Value: models.MustMoney("1")}}, ErrVoucherInvalid},
		{"percentage over 100", CreateVoucherInput{Code: "P101", VoucherTemplate: VoucherTemplate{DiscountType: constants.DiscountTypePercentage, Value: models.MustMoney("101")}}, ErrVoucherInvalid},
		{"zero fixed", CreateVoucherInput{Code: "ZERO", VoucherTemplate: VoucherTemplate{DiscountType: constants.DiscountTypeFixed}}, ErrVoucherInvalid},
		{"unknown qualification", CreateVoucherInput{Code: "QUAL", VoucherTemplate: VoucherTemplate{DiscountType: constants.DiscountTypeFixed, Value: models.MustMoney("1"), QualificationType: "everyone"}}, ErrVoucherInvalid},
		{"missing category", CreateVoucherInput{Code: "SCOPE", VoucherTemplate: VoucherTemplate{DiscountType: constants.DiscountTypeFixed, Value: models.MustMoney("1"), CategoryIDs: []uint{9999}}}, ErrVoucherScopeInvalid},
		{"missing user", CreateVoucherInput{Code: "USERS", VoucherTemplate: VoucherTemplate{DiscountType: constants.DiscountTypeFixed, Value: models.MustMoney("1"), EligibleUserIDs: []uint{9999}}}, ErrVoucherUsersInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.admin.Create(tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	f.createVoucher(t, CreateVoucherInput{Code: "dup"})
	if _, err := f.admin.Create(CreateVoucherInput{Code: "DUP", VoucherTemplate: VoucherTemplate{DiscountType: constants.DiscountTypeFixed, Value: models.MustMoney("1")}}); !errors.Is(err, ErrVoucherCodeExists) {
		t.Fatalf("expected code exists, got %v", err)
	}
}

func TestVoucherAdminUpdateKeepsUsageAndReplacesScope(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_admin_update")
	user := createServiceTestUser(t, f.db, "update@example.com")
	voucher := f.createVoucher(t, CreateVoucherInput{Code: "EDIT", VoucherTemplate: VoucherTemplate{CategoryIDs: []uint{f.category.ID}}})
	if _, err := f.svc.Apply(context.Background(), "EDIT", user.ID, cartOf(CartLine{ProductID: f.book.ID, Quantity: 1})); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	name := "renamed"
	maxTotal := 5
	productIDs := []uint{f.pen.ID}
	emptyCategories := []uint{}
	updated, err := f.admin.Update(voucher.ID, UpdateVoucherInput{
		Name:          &name,
		MaxTotalUsage: &maxTotal,
		CategoryIDs:   &emptyCategories,
		ProductIDs:    &productIDs,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != name || updated.MaxTotalUsage != 5 || updated.UsageCount != 1 {
		t.Fatalf("unexpected updated voucher: %+v", updated)
	}
	if len(updated.CategoryIDs) != 0 || len(updated.ProductIDs) != 1 || updated.ProductIDs[0] != f.pen.ID {
		t.Fatalf("scope should be replaced: categories=%v products=%v", updated.CategoryIDs, updated.ProductIDs)
	}

	bad := models.MustMoney("0")
	if _, err := f.admin.Update(voucher.ID, UpdateVoucherInput{Value: &bad}); !errors.Is(err, ErrVoucherInvalid) {
		t.Fatalf("expected invalid voucher, got %v", err)
	}
	if _, err := f.admin.Update(9999, UpdateVoucherInput{Name: &name}); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVoucherAdminGenerateBulkUniqueCodes(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_admin_bulk")
	user := createServiceTestUser(t, f.db, "bulk@example.com")

	result, err := f.admin.GenerateBulk(context.Background(), BulkGenerateInput{
		Prefix:     "spring-",
		Quantity:   1000,
		CodeLength: 8,
		VoucherTemplate: VoucherTemplate{
			DiscountType:      constants.DiscountTypeFixed,
			Value:             models.MustMoney("5"),
			QualificationType: constants.QualificationTargeted,
			CategoryIDs:       []uint{f.category.ID},
			EligibleUserIDs:   []uint{user.ID},
		},
	})
	if err != nil {
		t.Fatalf("generate bulk failed: %v", err)
	}
	if result.Count != 1000 || len(result.Vouchers) != 1000 || result.BatchNo == "" {
		t.Fatalf("unexpected bulk result: count=%d batch=%s", result.Count, result.BatchNo)
	}

	seen := make(map[string]struct{}, len(result.Vouchers))
	for _, v := range result.Vouchers {
		if !strings.HasPrefix(v.Code, "SPRING-") || len(v.Code) != len("SPRING-")+8 {
			t.Fatalf("unexpected code format: %s", v.Code)
		}
		if _, dup := seen[v.Code]; dup {
			t.Fatalf("duplicate code generated: %s", v.Code)
		}
		seen[v.Code] = struct{}{}
	}

	var stored int64
	f.db.Model(&models.Voucher{}).Where("batch_no = ?", result.BatchNo).Count(&stored)
	if stored != 1000 {
		t.Fatalf("expected 1000 stored vouchers, got %d", stored)
	}
	var scopeRows, eligibleRows int64
	f.db.Model(&models.VoucherCategory{}).Count(&scopeRows)
	f.db.Model(&models.UserVoucher{}).Count(&eligibleRows)
	if scopeRows != 1000 || eligibleRows != 1000 {
		t.Fatalf("scope=%d eligible=%d, want 1000 each", scopeRows, eligibleRows)
	}

	sample := result.Vouchers[0].Code
	if _, err := f.svc.Apply(context.Background(), sample, user.ID, cartOf(CartLine{ProductID: f.book.ID, Quantity: 1})); err != nil {
		t.Fatalf("apply generated voucher failed: %v", err)
	}
}

func TestVoucherAdminGenerateBulkQuantity(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_admin_bulk_quantity")
	template := VoucherTemplate{DiscountType: constants.DiscountTypeFixed, Value: models.MustMoney("1")}
	for _, quantity := range []int{0, -1, f.admin.MaxBulkQuantity() + 1} {
		if _, err := f.admin.GenerateBulk(context.Background(), BulkGenerateInput{Quantity: quantity, VoucherTemplate: template}); !errors.Is(err, ErrVoucherBulkQuantityInvalid) {
			t.Fatalf("quantity %d: expected bulk quantity invalid, got %v", quantity, err)
		}
	}
}

func TestVoucherAdminReconcileCorrectsDrift(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_admin_reconcile")
	user := createServiceTestUser(t, f.db, "reconcile@example.com")
	voucher := f.createVoucher(t, CreateVoucherInput{Code: "DRIFT"})
	clean := f.createVoucher(t, CreateVoucherInput{Code: "CLEAN"})
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Apply(context.Background(), "DRIFT", user.ID, cartOf(CartLine{ProductID: f.book.ID, Quantity: 1})); err != nil {
			t.Fatalf("apply failed: %v", err)
		}
	}
	if err := repository.NewVoucherRepository(f.db).SetUsageCount(voucher.ID, 7); err != nil {
		t.Fatalf("force drift failed: %v", err)
	}

	stats, err := f.admin.Stats(voucher.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Redemptions != 2 || stats.CounterDrift != 5 || stats.TotalDiscount.StringFixed(2) != "20.00" {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	corrected, err := f.admin.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("reconcile all failed: %v", err)
	}
	if corrected != 1 {
		t.Fatalf("expected 1 corrected voucher, got %d", corrected)
	}
	result, err := f.admin.Reconcile(context.Background(), voucher.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Corrected || result.After != 2 {
		t.Fatalf("second reconcile should be a no-op: %+v", result)
	}
	if result, _ := f.admin.Reconcile(context.Background(), clean.ID); result.Corrected {
		t.Fatalf("clean voucher should not be corrected")
	}
	if _, err := f.admin.Reconcile(context.Background(), 9999); !errors.Is(err, ErrVoucherNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVoucherAdminScheduleReconcile(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_admin_schedule")
	voucher := f.createVoucher(t, CreateVoucherInput{Code: "QUEUE"})

	q := &fakeTaskQueue{enabled: true}
	f.admin.queueClient = q
	queued, _, err := f.admin.ScheduleReconcile(context.Background(), voucher.ID)
	if err != nil || !queued {
		t.Fatalf("reconcile should be queued: queued=%v err=%v", queued, err)
	}
	if len(q.reconcilePayloads) != 1 || q.reconcilePayloads[0].VoucherID != voucher.ID {
		t.Fatalf("unexpected reconcile payloads: %+v", q.reconcilePayloads)
	}

	q.err = errors.New("redis down")
	repository.NewVoucherRepository(f.db).SetUsageCount(voucher.ID, 3)
	queued, corrected, err := f.admin.ScheduleReconcile(context.Background(), voucher.ID)
	if err != nil || queued || corrected != 1 {
		t.Fatalf("enqueue failure should fall back to inline: queued=%v corrected=%d err=%v", queued, corrected, err)
	}
}

func TestVoucherAdminEligibleUsersAndUsages(t *testing.T) {
	f := setupVoucherFixture(t, "voucher_admin_users")
	alice := createServiceTestUser(t, f.db, "alice_admin@example.com")
	bob := createServiceTestUser(t, f.db, "bob_admin@example.com")
	voucher := f.createVoucher(t, CreateVoucherInput{Code: "TARGET", VoucherTemplate: VoucherTemplate{
		QualificationType: constants.QualificationTargeted,
		EligibleUserIDs:   []uint{alice.ID},
	}})

	ids, err := f.admin.ReplaceEligibleUsers(voucher.ID, []uint{bob.ID, bob.ID, 0})
	if err != nil {
		t.Fatalf("replace eligible users failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != bob.ID {
		t.Fatalf("unexpected eligible ids: %v", ids)
	}
	cart := cartOf(CartLine{ProductID: f.book.ID, Quantity: 1})
	if _, err := f.svc.Apply(context.Background(), "TARGET", alice.ID, cart); !errors.Is(err, ErrVoucherNotEligible) {
		t.Fatalf("alice should no longer be eligible, got %v", err)
	}
	if _, err := f.svc.Apply(context.Background(), "TARGET", bob.ID, cart); err != nil {
		t.Fatalf("bob apply failed: %v", err)
	}

	usages, total, err := f.admin.ListUsages(voucher.ID, repository.VoucherUsageListFilter{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list usages failed: %v", err)
	}
	if total != 1 || len(usages) != 1 || usages[0].UserID != bob.ID {
		t.Fatalf("unexpected usages: total=%d rows=%+v", total, usages)
	}
}
