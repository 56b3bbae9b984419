package store

import (
	"context"

	"dompet/models"

	"gorm.io/gorm"
)

type gormExpenses struct {
	db *gorm.DB
}

func (r *gormExpenses) Create(ctx context.Context, e *models.Expense) error {
	return translate(r.db.WithContext(ctx).Omit("User").Create(e).Error, "expense")
}

func (r *gormExpenses) FindByID(ctx context.Context, id uint) (*models.Expense, error) {
	var e models.Expense
	if err := r.db.WithContext(ctx).First(&e, id).Error; err != nil {
		return nil, translate(err, "expense")
	}
	return &e, nil
}

func (r *gormExpenses) Update(ctx context.Context, id uint, p ExpensePatch) (*models.Expense, error) {
	changes := map[string]any{}
	if p.Amount != nil {
		changes["amount"] = *p.Amount
	}
	if p.Category != nil {
		changes["category"] = *p.Category
	}
	if p.Note != nil {
		changes["note"] = *p.Note
	}
	if p.Date != nil {
		changes["date"] = *p.Date
	}
	if err := updateByID(ctx, r.db, &models.Expense{}, id, changes, "expense"); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// Delete removes the row and returns what was deleted.
func (r *gormExpenses) Delete(ctx context.Context, id uint) (*models.Expense, error) {
	e, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res := r.db.WithContext(ctx).Delete(&models.Expense{}, id)
	if res.Error != nil {
		return nil, translate(res.Error, "expense")
	}
	if res.RowsAffected == 0 {
		return nil, translate(gorm.ErrRecordNotFound, "expense")
	}
	return e, nil
}

// filtered builds a fresh statement each call; gorm chains are not reusable
// across Count and Find.
func (r *gormExpenses) filtered(ctx context.Context, f ExpenseFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Expense{}).Where("client_id = ?", f.ClientID)
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.From != nil {
		q = q.Where("date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("date <= ?", *f.To)
	}
	return q
}

func (r *gormExpenses) List(ctx context.Context, f ExpenseFilter, p Page) ([]models.Expense, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, translate(err, "expense")
	}
	var rows []models.Expense
	err := r.filtered(ctx, f).
		Order("date DESC, id DESC").
		Offset(p.Offset).
		Limit(p.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, translate(err, "expense")
	}
	return rows, total, nil
}

func (r *gormExpenses) Summarize(ctx context.Context, f ExpenseFilter) (Totals, []CategoryTotal, error) {
	var totals Totals
	err := r.filtered(ctx, f).
		Select("COALESCE(SUM(amount), 0)::bigint AS total, COUNT(*) AS count").
		Scan(&totals).Error
	if err != nil {
		return Totals{}, nil, translate(err, "expense")
	}
	var breakdown []CategoryTotal
	err = r.filtered(ctx, f).
		Select("category, SUM(amount)::bigint AS total, COUNT(*) AS count").
		Group("category").
		Order("total DESC, category ASC").
		Scan(&breakdown).Error
	if err != nil {
		return Totals{}, nil, translate(err, "expense")
	}
	return totals, breakdown, nil
}
