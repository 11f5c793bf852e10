package lockmgr

import (
	"context"
	"time"

	"github.com/ValentinKolb/dClient/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("lockmgr")

type lockMgrImpl struct {
	store store.ICompareExchange
	now   func() time.Time
}

func NewLockManager(store store.ICompareExchange) ILockManager {
	return &lockMgrImpl{
		store: store,
		now:   time.Now,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the lockmgr package in interface.go)
// --------------------------------------------------------------------------

func (lm *lockMgrImpl) AcquireLock(ctx context.Context, key string, timeout time.Duration) (bool, string, error) {
	ownerID := generateOwnerID()
	value, err := newLockValue(ownerID, timeout, lm.now())
	if err != nil {
		return false, "", err
	}

	// Try to create the lock (index 0 only succeeds if the key does not exist)
	ok, _, err := lm.store.PutCompareExchange(ctx, key, value, 0)
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, ownerID, nil
	}

	// The lock is held, take it over if it expired
	cur, index, found, err := lm.store.GetCompareExchange(ctx, key)
	if err != nil {
		return false, "", err
	}
	if found {
		held, err := parseLockValue(cur)
		if err != nil {
			return false, "", err
		}
		if !held.expired(lm.now()) {
			return false, "", nil
		}
		Logger.Infof("lock %s of %s expired, taking it over", key, held.Owner)
	} else {
		// released in the meantime
		index = 0
	}

	ok, _, err = lm.store.PutCompareExchange(ctx, key, value, index)
	if err != nil || !ok {
		return false, "", err
	}
	return true, ownerID, nil
}

func (lm *lockMgrImpl) ReleaseLock(ctx context.Context, key string, ownerID string) (bool, error) {
	// Check if the lock exists
	cur, index, found, err := lm.store.GetCompareExchange(ctx, key)
	if err != nil || !found {
		return err == nil, err
	}

	// Check if the lock is owned by us
	held, err := parseLockValue(cur)
	if err != nil {
		return false, err
	}
	if held.Owner != ownerID {
		return false, nil
	}

	// Release the lock, fails if it was taken over since the read
	return lm.store.DeleteCompareExchange(ctx, key, index)
}
