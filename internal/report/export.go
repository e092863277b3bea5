package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/erazemk/garrison/internal/model"
)

// Export is the record set written to the spreadsheet.
type Export struct {
	Purchases    []model.Purchase
	Assignments  []model.Assignment
	Transfers    []model.Transfer
	Expenditures []model.Expenditure
}

// Sheet names of the export workbook, in order.
const (
	SheetPurchases    = "Purchases"
	SheetAssignments  = "Assignments"
	SheetTransfers    = "Transfers"
	SheetExpenditures = "Expenditures"
)

const dateLayout = "2006-01-02"

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func formatID(id *int64) any {
	if id == nil {
		return ""
	}
	return *id
}

// WriteXLSX writes one sheet per record kind with a bold, frozen, filterable header row.
func WriteXLSX(w io.Writer, data Export) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	sheets := []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{SheetPurchases, []any{"ID", "Item", "Category", "Quantity", "Available", "Unit Price", "Total",
			"Supplier", "Department", "Status", "Requested By", "Base", "Approved By", "Created"}, purchaseRows(data.Purchases)},
		{SheetAssignments, []any{"ID", "Assignment", "Personnel", "Unit", "Location", "Priority", "Equipment",
			"Equipment Qty", "Start", "End", "Status", "Assigned By", "Created"}, assignmentRows(data.Assignments)},
		{SheetTransfers, []any{"ID", "Equipment", "Quantity", "Source", "Destination", "Expected", "Actual",
			"Status", "Requested By", "Approved By", "Created"}, transferRows(data.Transfers)},
		{SheetExpenditures, []any{"ID", "Description", "Amount", "Category", "Department", "Status",
			"Requested By", "Base", "Payment Date", "Created"}, expenditureRows(data.Expenditures)},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				return fmt.Errorf("naming sheet %s: %w", s.name, err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", s.name, err)
		}

		if err := f.SetSheetRow(s.name, "A1", &s.header); err != nil {
			return fmt.Errorf("writing %s header: %w", s.name, err)
		}
		last, err := excelize.CoordinatesToCellName(len(s.header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("styling %s header: %w", s.name, err)
		}

		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return fmt.Errorf("writing %s row %d: %w", s.name, r+2, err)
			}
		}

		if err := f.AutoFilter(s.name, "A1:"+last, []excelize.AutoFilterOptions{}); err != nil {
			return fmt.Errorf("adding %s filter: %w", s.name, err)
		}
		if err := f.SetPanes(s.name, &excelize.Panes{Freeze: true, Split: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return fmt.Errorf("freezing %s header: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func purchaseRows(purchases []model.Purchase) [][]any {
	rows := make([][]any, 0, len(purchases))
	for _, p := range purchases {
		var avail any = ""
		if p.QuantityAvailable != nil {
			avail = *p.QuantityAvailable
		}
		rows = append(rows, []any{p.ID, p.Item, p.Category, p.Quantity, avail, p.UnitPrice, p.Total(),
			p.Supplier, p.Department, p.Status, p.RequesterName, p.RequesterBase, p.ApproverName,
			p.CreatedAt.Format(dateLayout)})
	}
	return rows
}

func assignmentRows(assignments []model.Assignment) [][]any {
	rows := make([][]any, 0, len(assignments))
	for _, a := range assignments {
		equipment := a.EquipmentItem
		if equipment == "" && a.EquipmentPurchaseID != nil {
			equipment = fmt.Sprint(formatID(a.EquipmentPurchaseID))
		}
		rows = append(rows, []any{a.ID, a.Title, a.PersonnelName, a.Unit, a.Location, a.Priority, equipment,
			a.EquipmentQuantity, a.StartDate.Format(dateLayout), a.EndDate.Format(dateLayout), a.Status,
			a.AssignerName, a.CreatedAt.Format(dateLayout)})
	}
	return rows
}

func transferRows(transfers []model.Transfer) [][]any {
	rows := make([][]any, 0, len(transfers))
	for _, t := range transfers {
		rows = append(rows, []any{t.ID, t.Equipment, t.Quantity, t.SourceBase, t.DestinationBase,
			formatDate(t.ExpectedDate), formatDate(t.ActualDate), t.Status, t.RequesterName, t.ApproverName,
			t.CreatedAt.Format(dateLayout)})
	}
	return rows
}

func expenditureRows(expenditures []model.Expenditure) [][]any {
	rows := make([][]any, 0, len(expenditures))
	for _, e := range expenditures {
		rows = append(rows, []any{e.ID, strings.TrimSpace(e.Description), e.Amount, e.Category, e.Department,
			e.Status, e.RequesterName, e.RequesterBase, formatDate(e.PaymentDate), e.CreatedAt.Format(dateLayout)})
	}
	return rows
}
