package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/mercato-next/internal/constants"
	"github.com/mercato-next/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupVoucherRepositoryTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:voucher_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), models.NewGormConfig("silent"))
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func createRepoTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        &email,
		PasswordHash: "hash",
		Status:       constants.UserStatusActive,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func TestVoucherRepositoryIncrementUsageIfAvailableStopsAtCap(t *testing.T) {
	db := setupVoucherRepositoryTest(t)
	repo := NewVoucherRepository(db)

	voucher := &models.Voucher{
		Code:              "CAP2",
		DiscountType:      constants.DiscountTypeFixed,
		Value:             models.MustMoney("5"),
		IsActive:          true,
		MaxTotalUsage:     2,
		QualificationType: constants.QualificationManual,
	}
	if err := repo.Create(voucher); err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		ok, err := repo.IncrementUsageIfAvailable(voucher.ID)
		if err != nil {
			t.Fatalf("increment failed: %v", err)
		}
		if !ok {
			t.Fatalf("increment %d should succeed", i+1)
		}
	}
	ok, err := repo.IncrementUsageIfAvailable(voucher.ID)
	if err != nil {
		t.Fatalf("increment failed: %v", err)
	}
	if ok {
		t.Fatalf("increment beyond cap should fail")
	}

	got, err := repo.GetByID(voucher.ID)
	if err != nil || got == nil {
		t.Fatalf("get voucher failed: %v", err)
	}
	if got.UsageCount != 2 {
		t.Fatalf("expected usage_count 2, got %d", got.UsageCount)
	}
}

func TestVoucherRepositoryUpdateKeepsUsageCount(t *testing.T) {
	db := setupVoucherRepositoryTest(t)
	repo := NewVoucherRepository(db)

	voucher := &models.Voucher{
		Code:              "KEEP",
		DiscountType:      constants.DiscountTypePercentage,
		Value:             models.MustMoney("10"),
		IsActive:          true,
		QualificationType: constants.QualificationManual,
	}
	if err := repo.Create(voucher); err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}
	if err := repo.SetUsageCount(voucher.ID, 7); err != nil {
		t.Fatalf("set usage count failed: %v", err)
	}

	voucher.UsageCount = 0
	voucher.IsActive = false
	voucher.Name = "renamed"
	if err := repo.Update(voucher); err != nil {
		t.Fatalf("update voucher failed: %v", err)
	}

	got, _ := repo.GetByID(voucher.ID)
	if got.UsageCount != 7 {
		t.Fatalf("usage_count should not be overwritten, got %d", got.UsageCount)
	}
	if got.IsActive {
		t.Fatalf("is_active should be false after update")
	}
	if got.Name != "renamed" {
		t.Fatalf("unexpected name: %s", got.Name)
	}
}

func TestVoucherRepositoryListAvailableForUser(t *testing.T) {
	db := setupVoucherRepositoryTest(t)
	repo := NewVoucherRepository(db)
	alice := createRepoTestUser(t, db, "alice_voucher_repo@example.com")
	bob := createRepoTestUser(t, db, "bob_voucher_repo@example.com")
	now := time.Now()
	past := now.Add(-time.Hour)

	vouchers := []*models.Voucher{
		{Code: "AUTO", QualificationType: constants.QualificationAutomatic, IsActive: true},
		{Code: "MANUAL", QualificationType: constants.QualificationManual, IsActive: true},
		{Code: "TARGET", QualificationType: constants.QualificationTargeted, IsActive: true},
		{Code: "EXPIRED", QualificationType: constants.QualificationAutomatic, IsActive: true, ExpiresAt: &past},
		{Code: "OFF", QualificationType: constants.QualificationAutomatic, IsActive: false},
		{Code: "FULL", QualificationType: constants.QualificationAutomatic, IsActive: true, MaxTotalUsage: 1, UsageCount: 1},
	}
	for _, v := range vouchers {
		v.DiscountType = constants.DiscountTypeFixed
		v.Value = models.MustMoney("1")
		if err := repo.Create(v); err != nil {
			t.Fatalf("create voucher %s failed: %v", v.Code, err)
		}
	}
	if err := repo.ReplaceEligibleUsers(vouchers[2].ID, []uint{alice.ID}); err != nil {
		t.Fatalf("replace eligible users failed: %v", err)
	}

	aliceList, err := repo.ListAvailableForUser(alice.ID, now)
	if err != nil {
		t.Fatalf("list available failed: %v", err)
	}
	if codes := voucherCodes(aliceList); len(codes) != 2 || !codes["AUTO"] || !codes["TARGET"] {
		t.Fatalf("unexpected vouchers for alice: %v", codes)
	}

	bobList, err := repo.ListAvailableForUser(bob.ID, now)
	if err != nil {
		t.Fatalf("list available failed: %v", err)
	}
	if codes := voucherCodes(bobList); len(codes) != 1 || !codes["AUTO"] {
		t.Fatalf("unexpected vouchers for bob: %v", codes)
	}
}

func TestVoucherRepositoryListAvailableForUserHonorsPerUserCap(t *testing.T) {
	db := setupVoucherRepositoryTest(t)
	repo := NewVoucherRepository(db)
	usageRepo := NewVoucherUsageRepository(db)
	alice := createRepoTestUser(t, db, "alice_cap_repo@example.com")
	bob := createRepoTestUser(t, db, "bob_cap_repo@example.com")
	now := time.Now()

	vouchers := []*models.Voucher{
		{Code: "ONCE", MaxUsagePerUser: 1},
		{Code: "TWICE", MaxUsagePerUser: 2},
		{Code: "UNLIMITED"},
	}
	for _, v := range vouchers {
		v.QualificationType = constants.QualificationAutomatic
		v.IsActive = true
		v.DiscountType = constants.DiscountTypeFixed
		v.Value = models.MustMoney("1")
		if err := repo.Create(v); err != nil {
			t.Fatalf("create voucher %s failed: %v", v.Code, err)
		}
	}
	usages := []models.VoucherUsage{
		{VoucherID: vouchers[0].ID, UserID: alice.ID, UserSeq: 1, ReceiptNo: "CAP-1"},
		{VoucherID: vouchers[1].ID, UserID: alice.ID, UserSeq: 1, ReceiptNo: "CAP-2"},
		{VoucherID: vouchers[2].ID, UserID: alice.ID, UserSeq: 1, ReceiptNo: "CAP-3"},
		{VoucherID: vouchers[2].ID, UserID: alice.ID, UserSeq: 2, ReceiptNo: "CAP-4"},
	}
	for i := range usages {
		if err := usageRepo.Create(&usages[i]); err != nil {
			t.Fatalf("create usage failed: %v", err)
		}
	}

	aliceList, err := repo.ListAvailableForUser(alice.ID, now)
	if err != nil {
		t.Fatalf("list available failed: %v", err)
	}
	if codes := voucherCodes(aliceList); len(codes) != 2 || !codes["TWICE"] || !codes["UNLIMITED"] {
		t.Fatalf("unexpected vouchers for alice: %v", codes)
	}

	bobList, err := repo.ListAvailableForUser(bob.ID, now)
	if err != nil {
		t.Fatalf("list available failed: %v", err)
	}
	if codes := voucherCodes(bobList); len(codes) != 3 {
		t.Fatalf("other users must not be affected by alice's usage: %v", codes)
	}
}

func TestVoucherRepositoryReplaceScope(t *testing.T) {
	db := setupVoucherRepositoryTest(t)
	repo := NewVoucherRepository(db)
	voucher := &models.Voucher{Code: "SCOPE", DiscountType: constants.DiscountTypeFixed, Value: models.MustMoney("1"), IsActive: true}
	if err := repo.Create(voucher); err != nil {
		t.Fatalf("create voucher failed: %v", err)
	}
	if err := repo.ReplaceScope(voucher.ID, []uint{3, 1}, []uint{9}); err != nil {
		t.Fatalf("replace scope failed: %v", err)
	}
	if err := repo.ReplaceScope(voucher.ID, []uint{2}, nil); err != nil {
		t.Fatalf("replace scope failed: %v", err)
	}
	categoryIDs, _ := repo.ListCategoryIDs(voucher.ID)
	productIDs, _ := repo.ListProductIDs(voucher.ID)
	if len(categoryIDs) != 1 || categoryIDs[0] != 2 {
		t.Fatalf("unexpected category ids: %v", categoryIDs)
	}
	if len(productIDs) != 0 {
		t.Fatalf("product scope should be cleared, got %v", productIDs)
	}
}

func TestVoucherUsageRepositoryUniqueUserSeqAndStats(t *testing.T) {
	db := setupVoucherRepositoryTest(t)
	usageRepo := NewVoucherUsageRepository(db)
	user := createRepoTestUser(t, db, "usage_repo@example.com")
	other := createRepoTestUser(t, db, "usage_repo_other@example.com")

	rows := []models.VoucherUsage{
		{VoucherID: 1, UserID: user.ID, UserSeq: 1, ReceiptNo: "R-1", DiscountAmount: models.MustMoney("2.50")},
		{VoucherID: 1, UserID: user.ID, UserSeq: 2, ReceiptNo: "R-2", DiscountAmount: models.MustMoney("1.25")},
		{VoucherID: 1, UserID: other.ID, UserSeq: 1, ReceiptNo: "R-3", DiscountAmount: models.MustMoney("3")},
	}
	for i := range rows {
		if err := usageRepo.Create(&rows[i]); err != nil {
			t.Fatalf("create usage failed: %v", err)
		}
	}

	dup := models.VoucherUsage{VoucherID: 1, UserID: user.ID, UserSeq: 2, ReceiptNo: "R-4"}
	err := usageRepo.Create(&dup)
	if err == nil {
		t.Fatalf("duplicate user_seq should be rejected")
	}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	count, err := usageRepo.CountByVoucherAndUser(1, user.ID)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 usages for user, got %d err=%v", count, err)
	}
	stats, err := usageRepo.StatsByVoucher(1)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.Redemptions != 3 || stats.DistinctUsers != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.TotalDiscount.String() != "6.75" {
		t.Fatalf("unexpected total discount: %s", stats.TotalDiscount.String())
	}

	list, total, err := usageRepo.List(VoucherUsageListFilter{VoucherID: 1, UserID: user.ID, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list usages failed: %v", err)
	}
	if total != 2 || len(list) != 2 || list[0].UserSeq != 2 {
		t.Fatalf("unexpected usage list: total=%d rows=%+v", total, list)
	}
}

func TestVerificationCodeRepositoryActiveIndex(t *testing.T) {
	db := setupVoucherRepositoryTest(t)
	repo := NewVerificationCodeRepository(db)
	user := createRepoTestUser(t, db, "code_repo@example.com")
	now := time.Now()

	first := &models.VerificationCode{
		UserID:      user.ID,
		Channel:     constants.ChannelEmail,
		Destination: "code_repo@example.com",
		Code:        "111111",
		ExpiresAt:   now.Add(10 * time.Minute),
	}
	if err := repo.Create(first); err != nil {
		t.Fatalf("create code failed: %v", err)
	}

	second := &models.VerificationCode{
		UserID:      user.ID,
		Channel:     constants.ChannelEmail,
		Destination: "code_repo@example.com",
		Code:        "222222",
		ExpiresAt:   now.Add(10 * time.Minute),
	}
	if err := repo.Create(second); err == nil || !IsUniqueViolation(err) {
		t.Fatalf("second active code should violate unique index, got %v", err)
	}

	affected, err := repo.SupersedeActive(user.ID, constants.ChannelEmail, now)
	if err != nil || affected != 1 {
		t.Fatalf("supersede failed: affected=%d err=%v", affected, err)
	}
	second.ID = 0
	if err := repo.Create(second); err != nil {
		t.Fatalf("create after supersede failed: %v", err)
	}

	active, err := repo.GetActive(user.ID, constants.ChannelEmail)
	if err != nil || active == nil || active.ID != second.ID {
		t.Fatalf("unexpected active code: %+v err=%v", active, err)
	}

	affected, err = repo.Consume(second.ID, now)
	if err != nil || affected != 1 {
		t.Fatalf("consume failed: affected=%d err=%v", affected, err)
	}
	affected, err = repo.Consume(second.ID, now)
	if err != nil || affected != 0 {
		t.Fatalf("second consume should affect no rows: affected=%d err=%v", affected, err)
	}

	old, _ := repo.GetByID(first.ID)
	if old.ConsumeReason != constants.ConsumeReasonSuperseded {
		t.Fatalf("expected superseded reason, got %q", old.ConsumeReason)
	}
	count, _ := repo.CountActive(user.ID, constants.ChannelEmail)
	if count != 0 {
		t.Fatalf("expected no active codes, got %d", count)
	}
}

func voucherCodes(list []models.Voucher) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, v := range list {
		out[v.Code] = true
	}
	return out
}
