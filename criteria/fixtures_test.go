package criteria_test

import (
	"testing"
	"time"

	"CriteriaManager/criteria"
	"CriteriaManager/resource"
	ft "CriteriaManager/util/filter_translator"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ========== 测试模型 ==========

type Source struct {
	ID        uint `gorm:"primaryKey"`
	Name      string
	CreatedAt time.Time
}

type Company struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

type Deal struct {
	ID        uint `gorm:"primaryKey"`
	ContactID uint
	Title     string
	Amount    float64
}

type ContactTag struct {
	ContactID uint
	Tag       string
}

// CustomFieldValue 自定义多选字段的共享值表，field_id 区分字段
type CustomFieldValue struct {
	RecordID uint
	FieldID  string
	Value    string
}

type Contact struct {
	ID        uint `gorm:"primaryKey"`
	FirstName string
	LastName  string
	Email     string
	Score     int
	Vip       bool
	UserID    uint
	CreatedAt time.Time
	SourceID  *uint
	Source    *Source
	CompanyID *uint
	Company   *Company
	Deals     []Deal
}

var fixedNow = time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)

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
			{Name: "vip", Type: ft.TypeBoolean, Column: "vip"},
			{Name: "created_at", Type: ft.TypeDateTime, Column: "created_at"},
			{Name: "source_id", Type: ft.TypeRelation, Column: "source_id"},
			{Name: "owner_is_me", Type: ft.TypeNumeric, Column: "user_id", Volatile: true},
			{Name: "tags", Type: ft.TypeMultiSelect, Pivot: &ft.Pivot{
				Table: "contact_tags", ForeignKey: "contact_id", ValueColumn: "tag",
			}},
		},
		SearchFields: []resource.SearchField{
			{Name: "first_name", Mode: resource.MatchExact},
			{Name: "last_name", Mode: resource.MatchLike},
		},
		Relations: []resource.Relation{
			{
				Name: "source", Kind: resource.BelongsTo, Table: "sources", ForeignKey: "source_id",
				Preload: "Source", Fields: []resource.FieldAdapter{text("name")},
			},
			{
				Name: "company", Kind: resource.BelongsTo, Table: "companies", ForeignKey: "company_id",
				Preload: "Company", Fields: []resource.FieldAdapter{text("name")},
			},
			{
				Name: "deals", Kind: resource.HasMany, Table: "deals", ForeignKey: "contact_id",
				Preload: "Deals", Fields: []resource.FieldAdapter{
					text("title"),
					{Name: "amount", Type: ft.TypeNumeric, Column: "amount"},
				},
			},
		},
		CustomFields: []resource.CustomField{
			{ID: "cf_mail", Label: "Mail", FieldType: "Email", Column: "email"},
			{ID: "cf_interests", Label: "Interests", FieldType: "Checkbox", Pivot: &ft.Pivot{
				Table: "custom_field_values", ForeignKey: "record_id", ValueColumn: "value",
				Scope: map[string]interface{}{"field_id": "cf_interests"},
			}},
		},
		Selectable: []string{"created_at"},
	})
}

func newPipeline() *criteria.Pipeline {
	ops := ft.NewOperatorRegistry(ft.WithClock(func() time.Time { return fixedNow }))
	return criteria.NewPipeline(contactResource(), ops, nil)
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Source{}, &Company{}, &Contact{}, &Deal{}, &ContactTag{}, &CustomFieldValue{}))
	return db
}

type fixtures struct {
	db       *gorm.DB
	johnDoe  Contact
	testJohn Contact
	janeDoe  Contact
	web      Source
	referral Source
}

// seed 三条联系人：John Doe、Test Johne、Jane Doe，创建时间依次递增
func seed(t *testing.T) fixtures {
	t.Helper()
	db := openDB(t)

	f := fixtures{db: db}
	f.web = Source{Name: "Web", CreatedAt: fixedNow.AddDate(-2, 0, 0)}
	f.referral = Source{Name: "Referral", CreatedAt: fixedNow.AddDate(-1, 0, 0)}
	require.NoError(t, db.Create(&f.web).Error)
	require.NoError(t, db.Create(&f.referral).Error)

	acme := Company{Name: "Acme"}
	require.NoError(t, db.Create(&acme).Error)

	f.johnDoe = Contact{
		FirstName: "John", LastName: "Doe", Email: "john@example.com", Score: 8, Vip: true, UserID: 1,
		CreatedAt: fixedNow.AddDate(0, 0, -40), SourceID: &f.referral.ID, CompanyID: &acme.ID,
	}
	f.testJohn = Contact{
		FirstName: "Test", LastName: "Johne", Email: "test@example.com", Score: 3, UserID: 2,
		CreatedAt: fixedNow.AddDate(0, 0, -10), SourceID: &f.web.ID,
	}
	f.janeDoe = Contact{
		FirstName: "Jane", LastName: "Doe", Email: "jane@example.org", Score: 5, UserID: 1,
		CreatedAt: fixedNow.AddDate(0, 0, -1), SourceID: &f.web.ID,
	}
	for _, c := range []*Contact{&f.johnDoe, &f.testJohn, &f.janeDoe} {
		require.NoError(t, db.Create(c).Error)
	}

	require.NoError(t, db.Create(&[]Deal{
		{ContactID: f.johnDoe.ID, Title: "Renewal", Amount: 5000},
		{ContactID: f.janeDoe.ID, Title: "Pilot", Amount: 200},
	}).Error)
	require.NoError(t, db.Create(&[]ContactTag{
		{ContactID: f.johnDoe.ID, Tag: "vip"},
		{ContactID: f.johnDoe.ID, Tag: "partner"},
		{ContactID: f.testJohn.ID, Tag: "lead"},
	}).Error)
	// Jane 的 golf 属于另一个字段
	require.NoError(t, db.Create(&[]CustomFieldValue{
		{RecordID: f.johnDoe.ID, FieldID: "cf_interests", Value: "golf"},
		{RecordID: f.testJohn.ID, FieldID: "cf_interests", Value: "chess"},
		{RecordID: f.janeDoe.ID, FieldID: "cf_hobbies", Value: "golf"},
	}).Error)
	return f
}

// find 编译并执行，返回联系人
func find(t *testing.T, db *gorm.DB, cs ...criteria.Criterion) []Contact {
	t.Helper()
	plan, err := newPipeline().Compile(resource.NewMemo(), cs...)
	require.NoError(t, err)
	var rows []Contact
	require.NoError(t, plan.Apply(db.Model(&Contact{})).Find(&rows).Error)
	return rows
}

func firstNames(rows []Contact) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.FirstName)
	}
	return out
}

func intPtr(n int) *int { return &n }
