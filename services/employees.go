package services

import "strapmon/models"

// EmployeeIndex is an EmployeeDirectory over an employee list snapshot
type EmployeeIndex struct {
	byID     map[int]*models.Employee
	byDevice map[string]*models.Employee
	count    int
}

// NewEmployeeIndex indexes employees by id and by assigned device
func NewEmployeeIndex(employees []models.Employee) *EmployeeIndex {
	idx := &EmployeeIndex{
		byID:     make(map[int]*models.Employee, len(employees)),
		byDevice: make(map[string]*models.Employee, len(employees)),
		count:    len(employees),
	}
	for i := range employees {
		employee := employees[i]
		if employee.ID != 0 {
			idx.byID[employee.ID] = &employee
		}
		if employee.DeviceID != "" {
			if _, taken := idx.byDevice[employee.DeviceID]; !taken {
				idx.byDevice[employee.DeviceID] = &employee
			}
		}
	}
	return idx
}

// LookupEmployee matches by employee id first, then by device id
func (idx *EmployeeIndex) LookupEmployee(employeeID int, deviceID string) (*models.Employee, bool) {
	if idx == nil {
		return nil, false
	}
	if employeeID != 0 {
		if employee, ok := idx.byID[employeeID]; ok {
			out := *employee
			return &out, true
		}
	}
	if deviceID != "" {
		if employee, ok := idx.byDevice[deviceID]; ok {
			out := *employee
			return &out, true
		}
	}
	return nil, false
}

// Len returns the number of indexed employees
func (idx *EmployeeIndex) Len() int {
	if idx == nil {
		return 0
	}
	return idx.count
}
