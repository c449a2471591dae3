package security

import "sort"

// Permission 权限定义
type Permission string

const (
	// 任务提交审核
	PermissionSubmissionRead    Permission = "submissions:read"
	PermissionSubmissionApprove Permission = "submissions:approve"
	PermissionSubmissionReject  Permission = "submissions:reject"

	// 返现
	PermissionPaybackRead    Permission = "paybacks:read"
	PermissionPaybackApprove Permission = "paybacks:approve"

	// 推荐
	PermissionReferralRead   Permission = "referrals:read"
	PermissionReferralVerify Permission = "referrals:verify"
	PermissionReferralPay    Permission = "referrals:pay"

	// 优惠券
	PermissionCouponRead  Permission = "coupons:read"
	PermissionCouponIssue Permission = "coupons:issue"

	// 用户与角色
	PermissionUserRead   Permission = "users:read"
	PermissionUserEdit   Permission = "users:edit"
	PermissionUserDelete Permission = "users:delete"
	PermissionRoleEdit   Permission = "roles:edit"

	// 任务目录
	PermissionMissionRead Permission = "missions:read"
	PermissionMissionEdit Permission = "missions:edit"

	PermissionDashboardRead Permission = "dashboard:read"
)

// Role 角色定义
type Role string

const (
	RoleCustomer      Role = "customer"
	RoleStoreManager  Role = "store_manager"
	RoleBranchManager Role = "branch_manager"
	RoleSuperAdmin    Role = "super_admin"
)

// Scope 门店可见范围
type Scope string

const (
	ScopeAll            Scope = "all"
	ScopeAssignedStores Scope = "assigned_stores"
	ScopeNone           Scope = "none"
)

var allPermissions = []Permission{
	PermissionSubmissionRead, PermissionSubmissionApprove, PermissionSubmissionReject,
	PermissionPaybackRead, PermissionPaybackApprove,
	PermissionReferralRead, PermissionReferralVerify, PermissionReferralPay,
	PermissionCouponRead, PermissionCouponIssue,
	PermissionUserRead, PermissionUserEdit, PermissionUserDelete, PermissionRoleEdit,
	PermissionMissionRead, PermissionMissionEdit,
	PermissionDashboardRead,
}

type roleDefinition struct {
	scope       Scope
	permissions map[Permission]struct{}
}

var roleDefinitions = map[Role]roleDefinition{
	RoleSuperAdmin: {
		scope:       ScopeAll,
		permissions: setOf(allPermissions...),
	},
	// 分校长：不含删除用户、编辑角色、编辑任务目录
	RoleBranchManager: {
		scope: ScopeAssignedStores,
		permissions: setOf(
			PermissionSubmissionRead, PermissionSubmissionApprove, PermissionSubmissionReject,
			PermissionPaybackRead, PermissionPaybackApprove,
			PermissionReferralRead, PermissionReferralVerify, PermissionReferralPay,
			PermissionCouponRead, PermissionCouponIssue,
			PermissionUserRead, PermissionUserEdit,
			PermissionMissionRead,
			PermissionDashboardRead,
		),
	},
	RoleStoreManager: {
		scope: ScopeAssignedStores,
		permissions: setOf(
			PermissionSubmissionRead, PermissionSubmissionApprove, PermissionSubmissionReject,
			PermissionPaybackRead,
			PermissionReferralRead,
			PermissionCouponRead, PermissionCouponIssue,
			PermissionUserRead,
			PermissionMissionRead,
			PermissionDashboardRead,
		),
	},
	RoleCustomer: {
		scope:       ScopeNone,
		permissions: setOf(),
	},
}

// fallbackRole 未识别的角色降级为权限最小的管理角色，而不是报错
const fallbackRole = RoleStoreManager

func setOf(ps ...Permission) map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(ps))
	for _, p := range ps {
		m[p] = struct{}{}
	}
	return m
}

// Permissions 某个操作者的能力集合，纯值，无副作用
type Permissions struct {
	role   Role
	scope  Scope
	perms  map[Permission]struct{}
	stores map[string]struct{}
}

// New 由角色和分配门店计算能力集合
func New(role Role, assignedStoreIDs []string) Permissions {
	def, ok := roleDefinitions[role]
	if !ok {
		role = fallbackRole
		def = roleDefinitions[fallbackRole]
	}
	stores := make(map[string]struct{}, len(assignedStoreIDs))
	for _, id := range assignedStoreIDs {
		if id != "" {
			stores[id] = struct{}{}
		}
	}
	return Permissions{role: role, scope: def.scope, perms: def.permissions, stores: stores}
}

// SystemActor 批处理任务使用的全局操作者
func SystemActor() Permissions {
	return New(RoleSuperAdmin, nil)
}

func (p Permissions) Role() Role   { return p.role }
func (p Permissions) Scope() Scope { return p.scope }

func (p Permissions) HasPermission(perm Permission) bool {
	_, ok := p.perms[perm]
	return ok
}

func (p Permissions) HasAnyPermission(perms ...Permission) bool {
	for _, perm := range perms {
		if p.HasPermission(perm) {
			return true
		}
	}
	return false
}

func (p Permissions) HasAllPermissions(perms ...Permission) bool {
	for _, perm := range perms {
		if !p.HasPermission(perm) {
			return false
		}
	}
	return true
}

// IsAdmin 是否拥有任意后台权限
func (p Permissions) IsAdmin() bool {
	return len(p.perms) > 0
}

// CanAccessStore scope=all 时恒为真，否则检查分配门店
func (p Permissions) CanAccessStore(storeID string) bool {
	switch p.scope {
	case ScopeAll:
		return true
	case ScopeAssignedStores:
		_, ok := p.stores[storeID]
		return ok
	default:
		return false
	}
}

// AccessibleStores 返回可访问门店；scope=all 时返回 nil 且 all=true
func (p Permissions) AccessibleStores() (stores []string, all bool) {
	if p.scope == ScopeAll {
		return nil, true
	}
	if p.scope == ScopeNone {
		return []string{}, false
	}
	stores = make([]string, 0, len(p.stores))
	for id := range p.stores {
		stores = append(stores, id)
	}
	sort.Strings(stores)
	return stores, false
}
