package cvsnumber

import "testing"

func TestParseAndIntern(t *testing.T) {
	tab := NewTable()
	a, err := tab.Parse("1.2.3.4")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := tab.Parse("1.2.3.4")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a != b {
		t.Fatalf("equal revision numbers must intern to the same pointer")
	}
	if a.String() != "1.2.3.4" {
		t.Fatalf("String() = %q", a.String())
	}
}

func TestIsTrunk(t *testing.T) {
	tab := NewTable()
	trunk, _ := tab.Parse("1.7")
	branch, _ := tab.Parse("1.7.2.1")
	if !trunk.IsTrunk() {
		t.Errorf("1.7 should be trunk")
	}
	if branch.IsTrunk() {
		t.Errorf("1.7.2.1 should not be trunk")
	}
}

func TestIsVendorBranch(t *testing.T) {
	tab := NewTable()
	vendor, _ := tab.Parse("1.1.1")
	notVendor, _ := tab.Parse("1.1.2")
	if !vendor.IsVendorBranch() {
		t.Errorf("1.1.1 should be a vendor branch")
	}
	if notVendor.IsVendorBranch() {
		t.Errorf("1.1.2 should not be a vendor branch (even x)")
	}
}

func TestIsBranchStickyTag(t *testing.T) {
	tab := NewTable()
	sticky, _ := tab.Parse("1.2.0.4")
	if !sticky.IsBranchStickyTag() {
		t.Fatalf("1.2.0.4 should be a branch-sticky tag number")
	}
	branchNum := sticky.BranchNumber(tab)
	if branchNum.String() != "1.2.4" {
		t.Errorf("BranchNumber() = %q, want 1.2.4", branchNum.String())
	}
}

func TestSameBranch(t *testing.T) {
	tab := NewTable()
	a, _ := tab.Parse("1.2.2.1")
	b, _ := tab.Parse("1.2.2.5")
	c, _ := tab.Parse("1.2.3.1")
	if !SameBranch(a, b) {
		t.Errorf("1.2.2.1 and 1.2.2.5 should be on the same branch")
	}
	if SameBranch(a, c) {
		t.Errorf("1.2.2.1 and 1.2.3.1 should not be on the same branch")
	}
}

func TestCompareOrdering(t *testing.T) {
	tab := NewTable()
	values := []string{"1.1", "1.2", "1.10", "1.2.1.1"}
	nums := make([]*Number, len(values))
	for i, v := range values {
		nums[i], _ = tab.Parse(v)
	}
	if Compare(nums[0], nums[1]) >= 0 {
		t.Errorf("1.1 should compare less than 1.2")
	}
	if Compare(nums[1], nums[2]) >= 0 {
		t.Errorf("1.2 should compare less than 1.10 (numeric, not lexical, component compare)")
	}
	if Compare(nums[1], nums[3]) >= 0 {
		t.Errorf("shorter number (1.2) should compare less than longer sharing prefix (1.2.1.1)")
	}
}
