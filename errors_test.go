// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package rainstream

import (
	"errors"

	"gopkg.in/check.v1"
)

type errorsSuite struct{}

var _ = check.Suite(&errorsSuite{})

func (s *errorsSuite) TestContextAfterKind(c *check.C) {
	err := withContext(&InsufficientClassesError{Classes: []string{"A"}}, "cohort %s", "x")
	c.Check(err, check.ErrorMatches, `InsufficientClassesError: cohort x: need at least 2 distinct labels, found 1 "A"`)
	var ierr *InsufficientClassesError
	c.Check(errors.As(err, &ierr), check.Equals, true)

	err = withContext(withContext(&ConvergenceError{Method: MethodLogReg, Detail: "diverged"}, "%s", MethodLogReg), "cohort %s", "y")
	c.Check(err, check.ErrorMatches, `ConvergenceError: cohort y: logreg_coef: diverged`)
	var cerr *ConvergenceError
	c.Check(errors.As(err, &cerr), check.Equals, true)

	c.Check(withContext(errors.New("disk full"), "cohort z"), check.ErrorMatches, `cohort z: disk full`)
}
